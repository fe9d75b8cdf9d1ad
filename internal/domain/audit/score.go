package audit

import "math"

const (
	capTwoOrMoreFailed = 19
	capOneFailed       = 39
)

// Score reduces a finding list to a percentage and severity band.
//
// Findings sharing an AggregationKey are counted once, with the worst status
// of the group. Failed findings cap the percentage before banding, so a site
// with many passes but two hard failures still lands in the critical band.
func Score(findings []Finding) ScoreResult {
	var res ScoreResult
	for _, st := range dedupe(findings) {
		switch st {
		case StatusPassed:
			res.Passed++
		case StatusWarning:
			res.Warning++
		case StatusFailed:
			res.Failed++
		}
	}
	res.CriticalCount = res.Failed

	total := res.Passed + res.Warning + res.Failed
	if total > 0 {
		ratio := (float64(res.Passed) + float64(res.Warning)*0.5) / float64(total)
		res.Percent = clampPercent(int(math.Round(ratio * 100)))
	}

	switch {
	case res.Failed >= 2 && res.Percent > capTwoOrMoreFailed:
		res.Percent = capTwoOrMoreFailed
	case res.Failed == 1 && res.Percent > capOneFailed:
		res.Percent = capOneFailed
	}

	res.Severity = Band(res.Percent)
	return res
}

// Band maps a final percentage onto a severity band.
func Band(percent int) Severity {
	switch {
	case percent < 20:
		return SeverityCritical
	case percent < 40:
		return SeverityHigh
	case percent < 60:
		return SeverityMedium
	case percent < 80:
		return SeverityLow
	default:
		return SeverityExcellent
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// dedupe collapses findings by aggregation key, keeping insertion order.
func dedupe(findings []Finding) []Status {
	idx := make(map[string]int, len(findings))
	out := make([]Status, 0, len(findings))
	for _, f := range findings {
		key := f.AggregationKey
		if key == "" {
			key = "id:" + f.ID
		}
		if i, ok := idx[key]; ok {
			if f.Status.rank() > out[i].rank() {
				out[i] = f.Status
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, f.Status)
	}
	return out
}
