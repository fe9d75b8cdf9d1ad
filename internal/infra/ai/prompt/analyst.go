package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

// maxPromptFindings keeps the user prompt within small-context models.
const maxPromptFindings = 30

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior privacy compliance analyst specialising in Russian Federal Law 152-FZ "On Personal Data" and related acts (149-FZ, KoAP RF art. 13.11). You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences. Write all text values in Russian.

Requirements:
- Output must be a single JSON object.
- summary is 2-4 sentences describing the overall compliance posture of the website.
- recommendations is an ordered list of concrete actions, most important first.
- additional_issues lists problems visible in the evidence that the automated checks did not report. Leave it empty when there are none; never repeat the automated findings.
- severity values are lowercase: critical, high, medium, low.
- Base conclusions only on the evidence provided. Do not invent facts about the company.

Schema (example with empty values):
{
  "summary": "<string>",
  "recommendations": ["<string>"],
  "additional_issues": [
    {
      "title": "<string>",
      "severity": "<critical|high|medium|low>",
      "category": "<privacy_policy|consent|cookies|contacts|legal|security|tracking>",
      "description": "<string>",
      "law_ref": "<string>",
      "recommendation": "<string>"
    }
  ]
}`
}

type promptFinding struct {
	Check    string `json:"check"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Issue    string `json:"issue"`
	Details  string `json:"details,omitempty"`
}

// GetUserPrompt lists failed and warning findings plus the evidence bundle.
func GetUserPrompt(url string, findings []audit.Finding, bundle audit.EvidenceBundle) string {
	problems := make([]promptFinding, 0, len(findings))
	for _, f := range findings {
		if f.Status == audit.StatusPassed {
			continue
		}
		problems = append(problems, promptFinding{
			Check:    f.Name,
			Status:   string(f.Status),
			Category: f.Category,
			Issue:    f.Description,
			Details:  f.Details,
		})
		if len(problems) == maxPromptFindings {
			break
		}
	}

	fb, err := json.Marshal(problems)
	if err != nil {
		fb = []byte("[]")
	}
	eb, err := json.Marshal(bundle)
	if err != nil {
		eb = []byte("{}")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Website: %s\n\n", url)
	fmt.Fprintf(&b, "Automated findings with problems (%d):\n%s\n\n", len(problems), fb)
	fmt.Fprintf(&b, "Evidence collected from the page, grouped by topic:\n%s\n\n", eb)
	b.WriteString("Analyze the evidence and respond with the JSON per schema.")
	return b.String()
}
