package verdict

import "testing"

func TestInterpret(t *testing.T) {
	tests := []struct {
		label Verdict
		want  Category
	}{
		{label: "No Brain Tumor", want: Negative},
		{label: "Glioma", want: Positive},
		{label: "Meningioma", want: Positive},
		{label: "Pituitary", want: Positive},
	}

	for _, tt := range tests {
		if got := Interpret(tt.label); got != tt.want {
			t.Errorf("Interpret(%q) = %s, want %s", tt.label, got, tt.want)
		}
	}
}

// Labels that merely resemble the sentinel must not be read as clean scans.
func TestInterpretUnknownLabelsArePositive(t *testing.T) {
	for _, label := range []Verdict{"", "no brain tumor", "No Brain Tumor ", "NO_TUMOR", "unknown", "null"} {
		if got := Interpret(label); got != Positive {
			t.Errorf("Interpret(%q) = %s, want positive", label, got)
		}
	}
}

func TestDescribe(t *testing.T) {
	neg := Describe(Negative)
	if neg.Tone != "success" || neg.HasAction() {
		t.Fatalf("unexpected negative summary: %+v", neg)
	}
	if neg.Headline != "Congratulations! No brain tumor detected." {
		t.Fatalf("unexpected negative headline: %q", neg.Headline)
	}

	pos := Describe(Positive)
	if pos.Tone != "danger" || !pos.HasAction() {
		t.Fatalf("unexpected positive summary: %+v", pos)
	}
	if pos.ActionLabel != "Find a Physician" || pos.ActionHref != "#find-physician" {
		t.Fatalf("unexpected referral action: %+v", pos)
	}
}
