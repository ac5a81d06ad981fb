package timeline

import (
	"fmt"
	"strings"
	"time"
)

// AgeInfo describes elapsed time relative to a timeline's base date. It is
// derived on demand and never persisted.
type AgeInfo struct {
	Days        int        `json:"days"`
	Months      int        `json:"months"`
	IsMilestone bool       `json:"is_milestone"`
	Milestone   *Milestone `json:"milestone,omitempty"`
}

// DaysBetween returns the civil (calendar) day difference between two
// instants. Both times are reduced to their year/month/day components before
// subtracting, so the result is immune to DST transitions and sub-day
// offsets. Negative when to precedes from.
func DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// ComputeAge derives the AgeInfo for query relative to base. Elapsed days
// are clamped at zero for queries at or before the base date. Months use the
// fixed 30-day approximation rather than calendar month arithmetic; existing
// labels depend on this. The first milestone whose day offset equals the
// elapsed day count wins.
func ComputeAge(base, query time.Time, milestones []Milestone) AgeInfo {
	totalDays := DaysBetween(base, query)
	if totalDays < 0 {
		totalDays = 0
	}

	info := AgeInfo{
		Days:   totalDays,
		Months: totalDays / 30,
	}
	for i := range milestones {
		if milestones[i].Days == totalDays {
			m := milestones[i]
			info.IsMilestone = true
			info.Milestone = &m
			break
		}
	}
	return info
}

// DisplayText renders the primary age label. A matched milestone's title is
// used verbatim; otherwise the day count is decomposed into
// years / 30-day months / days with zero components dropped.
func (a AgeInfo) DisplayText() string {
	if a.IsMilestone && a.Milestone != nil {
		return a.Milestone.Title
	}

	if a.Days >= 365 {
		years := a.Days / 365
		rem := a.Days % 365
		months := rem / 30
		days := rem % 30

		var b strings.Builder
		fmt.Fprintf(&b, "%d年", years)
		if months > 0 {
			fmt.Fprintf(&b, "%d个月", months)
		}
		if days > 0 {
			fmt.Fprintf(&b, "%d天", days)
		}
		return b.String()
	}

	if a.Days >= 30 {
		months := a.Days / 30
		days := a.Days - months*30
		if days > 0 {
			return fmt.Sprintf("%d个月%d天", months, days)
		}
		return fmt.Sprintf("%d个月", months)
	}

	return fmt.Sprintf("第%d天", a.Days)
}

// SubtitleText renders the day-counter label shown under the primary one.
// For milestone matches it uses the milestone's stored day offset, which in
// practice equals the elapsed day count.
func (a AgeInfo) SubtitleText() string {
	if a.IsMilestone && a.Milestone != nil {
		return fmt.Sprintf("第%d天", a.Milestone.Days)
	}
	return fmt.Sprintf("第%d天", a.Days)
}
