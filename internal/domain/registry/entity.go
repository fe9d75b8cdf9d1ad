package registry

import "time"

// Confidence of a registry lookup outcome.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// TTL is how long a cached lookup stays authoritative.
const TTL = 24 * time.Hour

// Result is the outcome of one operator-registry lookup.
type Result struct {
	TaxID              string     `json:"tax_id"`
	IsRegistered       bool       `json:"is_registered"`
	CompanyName        string     `json:"company_name,omitempty"`
	RegistrationNumber string     `json:"registration_number,omitempty"`
	RegistrationDate   string     `json:"registration_date,omitempty"`
	Confidence         Confidence `json:"confidence"`
	Details            string     `json:"details"`
	FromCache          bool       `json:"from_cache"`
	Error              string     `json:"error,omitempty"`
	ManualCheckURL     string     `json:"manual_check_url,omitempty"`
	Attempts           int        `json:"attempts,omitempty"`
	CheckedAt          time.Time  `json:"checked_at"`
}

// CacheEntry is the persisted form of a Result.
type CacheEntry struct {
	TaxID     string    `json:"tax_id"`
	Result    Result    `json:"result"`
	Attempts  int       `json:"attempts"`
	Negative  bool      `json:"negative"`
	CheckedAt time.Time `json:"checked_at"`
}

// Expired reports whether the entry is older than TTL at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.CheckedAt) >= TTL
}
