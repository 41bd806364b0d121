// ABOUTME: Write-path event validation
// ABOUTME: Rejects malformed events before any network or storage call
package calsync

import (
	"github.com/feelgame3025/ilouli-homepage-sub000/dates"
	"github.com/feelgame3025/ilouli-homepage-sub000/errs"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// ValidateEvent enforces the write-path contract. Provider reads stay
// tolerant (a remote event without a title is ingested as-is); anything a
// user writes must pass here first.
func ValidateEvent(e *models.Event) error {
	if e.Title == "" {
		return &errs.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if !dates.Valid(e.Date) {
		return &errs.ValidationError{Field: "date", Reason: "want YYYY-MM-DD"}
	}
	if e.AllDay {
		if e.Time != "" {
			return &errs.ValidationError{Field: "time", Reason: "must be empty for all-day events"}
		}
	} else {
		if !dates.ValidClock(e.Time) {
			return &errs.ValidationError{Field: "time", Reason: "want HH:MM"}
		}
	}
	if !validCategory(e.Category) {
		return &errs.ValidationError{Field: "category", Reason: "unknown category"}
	}
	return nil
}

func validCategory(category string) bool {
	for _, c := range models.Categories {
		if category == c {
			return true
		}
	}
	return false
}
