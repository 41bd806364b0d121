// ABOUTME: Merges local and remote event collections into one consistent view
// ABOUTME: Deduplicates synced events and provides date-based filtering and sorting
package calsync

import (
	"sort"

	"github.com/feelgame3025/ilouli-homepage-sub000/dates"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// Merge combines local events (origins local/synced) with a provider pull.
// Remote events whose id already appears as a local synced event's RemoteID
// are dropped, so one logical event never shows up twice. Merge itself
// imposes no ordering; it is idempotent over identical inputs.
func Merge(local, remote []models.Event) []models.Event {
	synced := make(map[string]struct{})
	for _, e := range local {
		if e.Origin == models.OriginSynced && e.RemoteID != "" {
			synced[e.RemoteID] = struct{}{}
		}
	}

	merged := make([]models.Event, 0, len(local)+len(remote))
	merged = append(merged, local...)
	for _, e := range remote {
		if _, ok := synced[e.RemoteID]; ok {
			continue
		}
		merged = append(merged, e)
	}

	return merged
}

// SortByDate orders events date ascending, timed before nothing in
// particular within a day beyond clock order. Stable so equal keys keep
// their merge order.
func SortByDate(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if c := dates.Compare(events[i].Date, events[j].Date); c != 0 {
			return c < 0
		}
		return events[i].Time < events[j].Time
	})
}

// FilterRange keeps events whose date falls within [timeMin, timeMax]
// inclusive; empty bounds are open.
func FilterRange(events []models.Event, timeMin, timeMax string) []models.Event {
	var out []models.Event
	for _, e := range events {
		if dates.InRange(e.Date, timeMin, timeMax) {
			out = append(out, e)
		}
	}
	return out
}

// EventsOnDate keeps events that fall on the given calendar date.
func EventsOnDate(events []models.Event, date string) []models.Event {
	var out []models.Event
	for _, e := range events {
		if dates.Compare(e.Date, date) == 0 {
			out = append(out, e)
		}
	}
	return out
}
