package timeline

import "encoding/json"

// MilestoneKind distinguishes the built-in checkpoints from user-authored
// ones. Both shapes expose the same (days, title, icon) triple and the age
// engine treats them identically.
type MilestoneKind string

const (
	MilestoneKindFixed  MilestoneKind = "fixed"
	MilestoneKindCustom MilestoneKind = "custom"
)

// Milestone is a named checkpoint at a day offset from a timeline's base
// date. Day offsets need not be unique; the first entry in stored order wins
// when several share an offset.
type Milestone struct {
	Kind  MilestoneKind `json:"kind,omitempty"`
	Days  int           `json:"days"`
	Title string        `json:"title"`
	Icon  string        `json:"icon,omitempty"`
}

// DefaultMilestones returns the built-in checkpoint set used when a timeline
// has no custom milestones.
func DefaultMilestones() []Milestone {
	return []Milestone{
		{Kind: MilestoneKindFixed, Days: 0, Title: "开始", Icon: "star.fill"},
		{Kind: MilestoneKindFixed, Days: 7, Title: "第7天", Icon: "7.circle.fill"},
		{Kind: MilestoneKindFixed, Days: 30, Title: "第30天", Icon: "30.circle.fill"},
		{Kind: MilestoneKindFixed, Days: 100, Title: "第100天", Icon: "100.circle.fill"},
		{Kind: MilestoneKindFixed, Days: 365, Title: "1周年", Icon: "1.circle.fill"},
	}
}

// ValidMilestone reports whether a milestone is well-formed: a non-negative
// day offset and a non-empty title.
func ValidMilestone(m Milestone) bool {
	return m.Days >= 0 && m.Title != ""
}

// EncodeMilestones serializes a milestone set to the opaque blob stored on
// the timeline record. The encoding round-trips losslessly.
func EncodeMilestones(milestones []Milestone) ([]byte, error) {
	return json.Marshal(milestones)
}

// DecodeMilestones parses a milestone blob. It returns false for invalid
// JSON, an empty set, or any malformed entry; callers fall back to the
// default set in that case.
func DecodeMilestones(data []byte) ([]Milestone, bool) {
	var milestones []Milestone
	if err := json.Unmarshal(data, &milestones); err != nil {
		return nil, false
	}
	if len(milestones) == 0 {
		return nil, false
	}
	for i := range milestones {
		if !ValidMilestone(milestones[i]) {
			return nil, false
		}
		if milestones[i].Kind == "" {
			milestones[i].Kind = MilestoneKindCustom
		}
	}
	return milestones, true
}

// MilestonesFromBlob resolves the effective milestone set for a timeline:
// the decoded custom set when the blob is present and valid, otherwise the
// defaults. A corrupt blob is never surfaced as an error.
func MilestonesFromBlob(data []byte) []Milestone {
	if len(data) == 0 {
		return DefaultMilestones()
	}
	milestones, ok := DecodeMilestones(data)
	if !ok {
		return DefaultMilestones()
	}
	return milestones
}
