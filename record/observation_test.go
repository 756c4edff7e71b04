package record

import (
	"testing"
)

func TestVerificationState(t *testing.T) {
	if !VerificationPending.Reviewable() || !VerificationNeedsInfo.Reviewable() {
		t.Error("pending and needs_info must remain reviewable")
	}
	for _, v := range []VerificationState{VerificationConfirmed, VerificationIncorrect, VerificationSkipped} {
		if v.Reviewable() {
			t.Errorf("Reviewable(%s) = true, want false", v)
		}
	}
	if VerificationState("maybe").IsValid() {
		t.Error("IsValid(maybe) = true, want false")
	}
}

func TestEvidenceQuality(t *testing.T) {
	tests := []struct {
		name string
		ev   Evidence
		want float64
	}{
		{"bare assertion", Evidence{}, 0.0},
		{"short quote", Evidence{Quote: "uses SAP"}, 0.6},
		{"long quote with section", Evidence{
			Quote:   "the target runs SAP ERP for all financial operations across three regions",
			Section: "4.2 Applications",
		}, 1.0},
		{"section only", Evidence{Section: "4.2"}, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Quality(); got != tt.want {
				t.Errorf("Quality() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReviewPriorityOrdering(t *testing.T) {
	weak := &Observation{
		Domain:     "security",
		Confidence: 0.2,
		Evidence:   Evidence{},
	}
	strong := &Observation{
		Domain:     "organization",
		Confidence: 0.95,
		Evidence: Evidence{
			Quote:    "the IT organization counts 42 FTEs across infrastructure and support",
			Section:  "6.1",
			Document: "org-chart.pdf",
		},
	}
	if weak.ReviewPriority() <= strong.ReviewPriority() {
		t.Errorf("weak claim priority %v should exceed strong claim priority %v",
			weak.ReviewPriority(), strong.ReviewPriority())
	}
}

func TestDomainWeightFallback(t *testing.T) {
	if DomainWeight("security") <= DomainWeight("organization") {
		t.Error("security must outweigh organization")
	}
	if got := DomainWeight("unheard-of"); got != 3.0 {
		t.Errorf("DomainWeight(unknown) = %v, want 3.0", got)
	}
}
