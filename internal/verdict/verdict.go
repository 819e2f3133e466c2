// Package verdict interprets the labels returned by the remote classifier.
package verdict

// Verdict is the opaque label returned by the classification service. It is
// never rewritten locally.
type Verdict string

// NoFinding is the one label the service uses for a clean scan.
const NoFinding Verdict = "No Brain Tumor"

// Category is the presentation bucket a verdict falls into.
type Category string

const (
	Negative Category = "negative"
	Positive Category = "positive"
)

// Interpret applies the fail-open-to-positive policy: only the exact
// NoFinding label is negative, every other label (including ones the service
// was never documented to return) is a finding.
func Interpret(v Verdict) Category {
	if v == NoFinding {
		return Negative
	}
	return Positive
}

// Summary is the copy every presentation binding shows for a category.
type Summary struct {
	Tone        string `json:"tone"`
	Headline    string `json:"headline"`
	ActionLabel string `json:"action_label,omitempty"`
	ActionHref  string `json:"action_href,omitempty"`
}

// HasAction reports whether the summary carries a follow-up link.
func (s Summary) HasAction() bool {
	return s.ActionHref != ""
}

// Describe returns the user-facing summary for c.
func Describe(c Category) Summary {
	if c == Negative {
		return Summary{
			Tone:     "success",
			Headline: "Congratulations! No brain tumor detected.",
		}
	}
	return Summary{
		Tone:        "danger",
		Headline:    "Brain tumor detected",
		ActionLabel: "Find a Physician",
		ActionHref:  "#find-physician",
	}
}
