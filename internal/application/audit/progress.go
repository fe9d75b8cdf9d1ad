package audit

import (
	"github.com/sirupsen/logrus"
)

// Stage is a fixed pipeline checkpoint, 0 through 6.
type Stage int

const (
	StageStarted  Stage = iota // 0
	StageFetched               // 1 page acquired
	StageChecked               // 2 rule checks done
	StageBundled               // 3 evidence bundled
	StageEnriched              // 4 registry, hosting and AI done
	StageScored                // 5 score and brief
	StageDone                  // 6
)

var stageMessages = [...]string{
	"audit started",
	"page fetched",
	"compliance checks finished",
	"evidence collected",
	"registry and AI analysis finished",
	"score calculated",
	"audit complete",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageMessages) {
		return "unknown"
	}
	return stageMessages[s]
}

// Progress is one advisory checkpoint notification.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// ProgressFunc observes checkpoints. It runs on its own goroutine; a slow or
// panicking observer loses events but never blocks the audit.
type ProgressFunc func(Progress)

const progressBuffer = 8

type reporter struct {
	ch  chan Progress
	log *logrus.Entry
}

// newReporter returns nil when there is no observer; a nil reporter drops everything.
func newReporter(fn ProgressFunc, log *logrus.Entry) *reporter {
	if fn == nil {
		return nil
	}
	r := &reporter{ch: make(chan Progress, progressBuffer), log: log}
	go r.drain(fn)
	return r
}

func (r *reporter) drain(fn ProgressFunc) {
	for p := range r.ch {
		r.deliver(fn, p)
	}
}

func (r *reporter) deliver(fn ProgressFunc, p Progress) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("stage", int(p.Stage)).Warnf("progress observer panicked: %v", rec)
		}
	}()
	fn(p)
}

func (r *reporter) report(s Stage) {
	if r == nil {
		return
	}
	p := Progress{Stage: s, Percent: int(s) * 100 / int(StageDone), Message: s.String()}
	select {
	case r.ch <- p:
	default:
		r.log.WithField("stage", int(s)).Debug("progress observer is behind, event dropped")
	}
}

// close lets the drain goroutine finish on its own.
func (r *reporter) close() {
	if r != nil {
		close(r.ch)
	}
}
