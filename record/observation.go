package record

import (
	"strings"
	"time"
)

// VerificationState tracks where an observation sits in the human review workflow.
type VerificationState string

const (
	// VerificationPending indicates the observation has not been reviewed.
	VerificationPending VerificationState = "pending"

	// VerificationConfirmed indicates a reviewer accepted the claim.
	VerificationConfirmed VerificationState = "confirmed"

	// VerificationIncorrect indicates a reviewer rejected the claim.
	VerificationIncorrect VerificationState = "incorrect"

	// VerificationNeedsInfo indicates the claim cannot be judged without
	// more source material.
	VerificationNeedsInfo VerificationState = "needs_info"

	// VerificationSkipped indicates the reviewer deliberately passed over the claim.
	VerificationSkipped VerificationState = "skipped"
)

// IsValid returns true if the verification state is one of the defined states.
func (v VerificationState) IsValid() bool {
	switch v {
	case VerificationPending, VerificationConfirmed, VerificationIncorrect,
		VerificationNeedsInfo, VerificationSkipped:
		return true
	default:
		return false
	}
}

// Reviewable reports whether a reviewer may still act on an observation in
// this state. Confirmed, incorrect, and skipped are settled.
func (v VerificationState) Reviewable() bool {
	return v == VerificationPending || v == VerificationNeedsInfo
}

// Evidence is the source reference backing an observation.
type Evidence struct {
	// Quote is the verbatim passage supporting the claim.
	Quote string `json:"quote,omitempty"`

	// Section locates the quote within the document.
	Section string `json:"section,omitempty"`

	// Document is the source file the claim was extracted from.
	Document string `json:"document,omitempty"`
}

// Quality scores how well the evidence supports its claim, from 0.0 (bare
// assertion) to 1.0 (located verbatim quote). Used only to order the review
// queue, never to gate correctness.
func (e Evidence) Quality() float64 {
	q := 0.0
	if strings.TrimSpace(e.Quote) != "" {
		q += 0.6
		if len(strings.TrimSpace(e.Quote)) >= 40 {
			q += 0.2
		}
	}
	if strings.TrimSpace(e.Section) != "" {
		q += 0.2
	}
	if q > 1.0 {
		q = 1.0
	}
	return q
}

// domainWeights maps observation domains to review sensitivity weights.
// Higher weights surface earlier in the review queue.
var domainWeights = map[string]float64{
	"security":       10.0,
	"vendors":        7.5,
	"applications":   7.0,
	"cost":           6.5,
	"infrastructure": 5.0,
	"network":        5.0,
	"organization":   4.0,
}

// DomainWeight returns the review sensitivity weight for a domain.
// Unknown domains weigh 3.0 so they are reviewed but not prioritized.
func DomainWeight(domain string) float64 {
	if w, ok := domainWeights[strings.ToLower(strings.TrimSpace(domain))]; ok {
		return w
	}
	return 3.0
}

// Observation is a single evidence-backed claim extracted from one source.
// Content is immutable once created; only Verification and LinkedItem may
// be mutated, and only through the store.
type Observation struct {
	// ID is the deterministic content-derived identifier. The tenant is
	// deliberately not part of it; see the identity package.
	ID string `json:"id"`

	// Domain is the extraction domain: applications, network, security, ...
	Domain string `json:"domain"`

	// Category refines the domain (e.g. "saas" within applications).
	Category string `json:"category,omitempty"`

	// Label is the short name of the observed thing.
	Label string `json:"label"`

	// Text is the full normalized claim.
	Text string `json:"text"`

	// Attributes carries structured fields extracted alongside the claim.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Lifecycle is the claimed lifecycle of the observed thing
	// ("active", "planned", "being decommissioned", ...). Free-form.
	Lifecycle string `json:"lifecycle,omitempty"`

	// Evidence is the source reference backing the claim.
	Evidence Evidence `json:"evidence"`

	// Subject is which side of the engagement the claim describes.
	Subject string `json:"subject"`

	// Tenant is the deal the observation belongs to. Scoping is enforced by
	// the store even though it is absent from the ID.
	Tenant string `json:"tenant"`

	// Confidence is the extractor's confidence in the claim (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Verification is the human review state.
	Verification VerificationState `json:"verification"`

	// LinkedItem is the ID of the canonical item this observation was
	// folded into, when known.
	LinkedItem string `json:"linked_item,omitempty"`

	// Origin distinguishes document-extracted observations from ones
	// synthesized out of the inventory by reconciliation.
	Origin Origin `json:"origin"`

	// CreatedAt is when the observation was first stored.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the verification state or link last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewPriority computes the ordering score for the human review queue.
// Sensitive domains, low-confidence claims, weak evidence, and missing
// source documents all push an observation toward the front. The score
// orders work; it never gates correctness.
func (o *Observation) ReviewPriority() float64 {
	p := DomainWeight(o.Domain) * (1.0 - clamp01(o.Confidence))
	p += (1.0 - o.Evidence.Quality()) * 2.0
	if strings.TrimSpace(o.Evidence.Document) == "" {
		p += 1.5
	}
	return p
}

// Clone returns a deep copy of the observation.
func (o *Observation) Clone() *Observation {
	cp := *o
	if o.Attributes != nil {
		cp.Attributes = make(map[string]string, len(o.Attributes))
		for k, v := range o.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
