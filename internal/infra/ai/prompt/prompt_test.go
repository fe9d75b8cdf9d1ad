package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"wrapped in prose", "Here is the analysis:\n```json\n{\"a\":{\"b\":2}}\n```\nHope it helps {not json", `{"a":{"b":2}}`},
		{"braces inside strings", `ok {"s":"a } b { c","t":"\"}"} tail`, `{"s":"a } b { c","t":"\"}"}`},
		{"unbalanced first brace", `{ broken {"a":1}`, `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ExtractJSON("no object here")
	assert.ErrorIs(t, err, ai.ErrNoJSON)
}

func TestParseReply(t *testing.T) {
	raw := `Sure! {"summary":"Сайт собирает данные без согласия и без политики.",
"recommendations":["Опубликовать политику", {"text":"Добавить чекбокс согласия"}, ""],
"additional_issues":[{"title":"Форма передаёт данные по HTTP","severity":"high","category":"security","law_ref":"152-FZ art. 19","recommendation":"Включить HTTPS"},{"title":""}]}`

	res, err := ParseReply("gigachat", raw)
	require.NoError(t, err)
	assert.Equal(t, "gigachat", res.Provider)
	assert.Equal(t, []string{"Опубликовать политику", "Добавить чекбокс согласия"}, res.Recommendations)
	require.Len(t, res.AdditionalFindings, 1)

	f := res.AdditionalFindings[0]
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, audit.StatusFailed, f.Status)
	assert.Equal(t, "security", f.Category)
	assert.Equal(t, "ai:форма_передаёт_данные_по_http", f.AggregationKey)
	assert.Equal(t, []string{"Включить HTTPS"}, f.RemediationSteps)
	assert.Equal(t, 1+2+2, res.Score())
}

func TestParseReply_Defaults(t *testing.T) {
	res, err := ParseReply("openai", `{"summary":"Только краткое резюме без рекомендаций."}`)
	require.NoError(t, err)
	assert.NotNil(t, res.Recommendations)
	assert.NotNil(t, res.AdditionalFindings)

	_, err = ParseReply("openai", "   ")
	assert.ErrorIs(t, err, ai.ErrEmptyReply)
	_, err = ParseReply("openai", `{"unrelated":true}`)
	assert.ErrorIs(t, err, ai.ErrEmptyReply)
	_, err = ParseReply("openai", `I cannot help with that.`)
	assert.ErrorIs(t, err, ai.ErrNoJSON)
}

func TestGetUserPrompt_OnlyProblems(t *testing.T) {
	findings := []audit.Finding{
		{Name: "HTTPS transport", Status: audit.StatusPassed},
		{Name: "Privacy policy", Status: audit.StatusFailed, Category: "privacy_policy", Description: "missing"},
		{Name: "HSTS", Status: audit.StatusWarning, Category: "security"},
	}
	p := GetUserPrompt("https://a.example/", findings, audit.Bundle(findings, "https://a.example/"))
	assert.Contains(t, p, "https://a.example/")
	assert.Contains(t, p, "Privacy policy")
	assert.Contains(t, p, "(2)")
	assert.NotContains(t, p, `"check":"HTTPS transport"`)
}

func TestFallbackSummary(t *testing.T) {
	s := FallbackSummary("", nil)
	assert.True(t, strings.HasPrefix(s, UnavailableNote), s)
	assert.Contains(t, s, "All automated checks passed")

	s = FallbackSummary("AI analysis was skipped: no credentials are configured for provider openai.", nil)
	assert.True(t, strings.HasPrefix(s, "AI analysis was skipped"), s)

	s = FallbackSummary("", []audit.Finding{{Name: "Cookie notice", Status: audit.StatusFailed}, {Name: "CSP", Status: audit.StatusWarning}})
	assert.Contains(t, s, "Critical issues (1): Cookie notice.")
	assert.Contains(t, s, "1 warning(s)")
}
