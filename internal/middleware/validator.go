package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/pdaudit/internal/infra/fetch"
)

// Input validation and sanitization utilities

const maxURLLength = 2048

// ValidateURL checks scheme, host and the private-address policy before any
// work is queued.
func ValidateURL(rawURL string) (string, error) {
	rawURL = SanitizeString(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("url cannot be empty")
	}
	if len(rawURL) > maxURLLength {
		return "", fmt.Errorf("url longer than %d characters", maxURLLength)
	}
	// bare hosts are common in forms
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := fetch.ValidateURL(rawURL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// ValidateReportID accepts only UUIDs.
func ValidateReportID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid report id format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ValidatePage clamps a page number to at least 1.
func ValidatePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// ClampCrawl keeps caller-supplied crawl budgets within what one request may use.
func ClampCrawl(maxPages, depth int, timeout time.Duration) (int, int, time.Duration) {
	if maxPages > 50 {
		maxPages = 50
	}
	if depth > 5 {
		depth = 5
	}
	if timeout > 5*time.Minute {
		timeout = 5 * time.Minute
	}
	return maxPages, depth, timeout
}
