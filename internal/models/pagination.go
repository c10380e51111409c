package models

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// NormalizePage clamps a requested page. Non-positive or oversized limits
// fall back to DefaultPageLimit.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > MaxPageLimit {
		limit = DefaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
