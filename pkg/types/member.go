package types

import (
	"strings"
	"time"
)

// Member is a person in the family tree. Members are owned by the external
// directory; the relationship engine only reads them.
type Member struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	BirthDate *time.Time `json:"birth_date,omitempty"` // Calendar date, nil when unknown
	Gender    Gender     `json:"gender,omitempty"`
}

// FullName returns "First Last", trimmed when either part is missing.
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// BirthYear returns the birth year and true, or 0 and false when unknown.
func (m *Member) BirthYear() (int, bool) {
	if m == nil || m.BirthDate == nil {
		return 0, false
	}
	return m.BirthDate.Year(), true
}

// Summary returns the display projection of the member.
func (m *Member) Summary() MemberSummary {
	return MemberSummary{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
	}
}

// MemberSummary is the display projection of a member attached to relation listings.
type MemberSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// YearsBetween returns the number of whole years between a and b regardless of order.
// It reports false when either date is unknown.
func YearsBetween(a, b *time.Time) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	older, younger := *a, *b
	if younger.Before(older) {
		older, younger = younger, older
	}
	years := younger.Year() - older.Year()
	if younger.Month() < older.Month() || (younger.Month() == older.Month() && younger.Day() < older.Day()) {
		years--
	}
	return years, true
}
