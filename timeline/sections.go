package timeline

import (
	"sort"
	"time"
)

// Item is a single photo as seen by the sectioning algorithm. CaptureTime is
// the already-resolved effective capture date (manual override, then EXIF,
// then the added-at fallback). ImportOrder breaks ties between items sharing
// an identical capture timestamp; it must be unique and stable across runs.
type Item interface {
	CaptureTime() time.Time
	ImportOrder() int64
}

// Section is a contiguous run of items sharing one date/age bucket. Sections
// are rebuilt in full whenever the underlying photo set changes and are
// never mutated in place.
type Section struct {
	Date  time.Time
	Age   AgeInfo
	Items []Item
}

// BuildSections sorts items by effective capture date and groups consecutive
// ones into sections. A new section starts whenever the civil day changes or
// the computed display text changes; the second test can split a calendar
// day when the label transitions mid-day (crossing a month boundary, or a
// milestone whose offset matches only part of the day's photos after a
// manual date edit). Output is oldest first, every section non-empty, and
// the concatenation of all sections reproduces the sorted input exactly.
func BuildSections(items []Item, base time.Time, milestones []Milestone) []Section {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].CaptureTime(), sorted[j].CaptureTime()
		if ti.Equal(tj) {
			return sorted[i].ImportOrder() < sorted[j].ImportOrder()
		}
		return ti.Before(tj)
	})

	var sections []Section
	var current Section

	for _, item := range sorted {
		age := ComputeAge(base, item.CaptureTime(), milestones)

		if len(current.Items) == 0 {
			current = Section{Date: item.CaptureTime(), Age: age, Items: []Item{item}}
			continue
		}

		dayChanged := DaysBetween(current.Date, item.CaptureTime()) != 0
		labelChanged := current.Age.DisplayText() != age.DisplayText()
		if dayChanged || labelChanged {
			sections = append(sections, current)
			current = Section{Date: item.CaptureTime(), Age: age, Items: []Item{item}}
			continue
		}

		current.Items = append(current.Items, item)
	}

	return append(sections, current)
}
