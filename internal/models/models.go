package models

import "time"

// AngleStatus describes the terminal state of one executed angle.
type AngleStatus string

const (
	StatusOK       AngleStatus = "ok"
	StatusFailed   AngleStatus = "failed"
	StatusTimedOut AngleStatus = "timed_out"
)

// Angle is one analytical framing of the user's query. Index defines the
// presentation order and is the tie-break for anything sorted "by angle".
type Angle struct {
	Index  int    `json:"index"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

// SourceRef points from an angle result to a registered Source. The excerpt
// here is the per-occurrence snippet seen by that angle; the registry keeps
// the first-seen excerpt as canonical.
type SourceRef struct {
	SourceID string `json:"source_id"`
	Excerpt  string `json:"excerpt,omitempty"`
}

// Source is a deduplicated citation record owned by the registry. CitingAngles
// accumulates the indices of every angle that referenced it; everything else
// is immutable after creation.
type Source struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url,omitempty"`
	Excerpt      string `json:"excerpt,omitempty"`
	Page         int    `json:"page,omitempty"`
	CitingAngles []int  `json:"citing_angles"`
}

// AngleResult is the normalized outcome of executing one angle. Immutable once
// produced by the executor.
type AngleResult struct {
	Angle          Angle       `json:"angle"`
	Text           string      `json:"text"`
	Sources        []SourceRef `json:"sources"`
	Status         AngleStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	MessageID      string      `json:"message_id,omitempty"`
}

// Contradiction describes one disagreement found between angle answers.
type Contradiction struct {
	Description  string `json:"description"`
	AngleIndices []int  `json:"angle_indices"`
}

// Report is the terminal artifact returned to the caller.
//
// Sources is the full registry listing in id order; CitationMap numbers the
// markers that actually appear in SynthesizedText, in order of first
// appearance, which may reorder relative to the registry ids.
type Report struct {
	ReportID        string          `json:"report_id"`
	Query           string          `json:"query"`
	SynthesizedText string          `json:"synthesized_text"`
	AngleResults    []AngleResult   `json:"angle_results"`
	Contradictions  []Contradiction `json:"contradictions"`
	Sources         []*Source       `json:"sources"`
	CitationMap     map[int]string  `json:"citation_map"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// SucceededResults returns the StatusOK subset of results preserving order.
func SucceededResults(results []AngleResult) []AngleResult {
	out := make([]AngleResult, 0, len(results))
	for _, r := range results {
		if r.Status == StatusOK {
			out = append(out, r)
		}
	}
	return out
}
