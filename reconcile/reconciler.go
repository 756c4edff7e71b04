package reconcile

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/diligence-ai/estate/identity"
	"github.com/diligence-ai/estate/inventory"
	"github.com/diligence-ai/estate/observation"
	"github.com/diligence-ai/estate/record"
)

// DefaultFoldThreshold is the minimum coarse-name length eligible for
// duplicate folding. Names shorter than this ("IT", "HR") are too generic
// to fold safely.
const DefaultFoldThreshold = 4

// Reconciler links observations to canonical items and folds
// near-duplicate items produced by inconsistent source data.
//
// It works exclusively through the stores' public methods and touches the
// item store before the observation store, never holding both locks at
// once, so it cannot deadlock against concurrent store callers.
type Reconciler struct {
	items        *inventory.Store
	observations *observation.Store
	logger       *slog.Logger
}

// New creates a reconciler over one tenant's pair of stores.
func New(items *inventory.Store, observations *observation.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{items: items, observations: observations, logger: logger}
}

// SyncObservationsToItems creates a synthetic observation for every active
// item of the subject that lacks one, so downstream consumers can cite
// inventory-sourced facts the same way as document-sourced facts. Items
// whose name already has a matching observation (case-insensitive) are
// skipped to avoid duplicate citations. Returns the number created.
func (r *Reconciler) SyncObservationsToItems(subject string) (int, error) {
	created := 0
	for _, item := range r.items.Active(subject) {
		label := displayName(item)
		if label == "" {
			continue
		}
		if r.observations.HasLabel(label, subject) {
			continue
		}

		res, err := r.observations.Add(observation.AddInput{
			Domain:     domainFor(item.Type),
			Category:   item.Category,
			Label:      label,
			Text:       syntheticClaim(item, label),
			Attributes: item.Attributes,
			Subject:    subject,
			Confidence: 1.0,
			Origin:     record.OriginSync,
			Evidence:   record.Evidence{Section: "inventory"},
		})
		if err != nil {
			return created, fmt.Errorf("synthesize observation for %s: %w", item.ID, err)
		}
		if !res.Created {
			continue
		}
		if err := r.observations.SetLinkedItem(res.ID, item.ID); err != nil {
			return created, err
		}
		if err := r.items.LinkObservation(item.ID, res.ID); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// Link is one resolved reference from free text to a canonical item.
type Link struct {
	// ItemID is the canonical item the text refers to.
	ItemID string

	// Match is the exact fragment that matched: an ID literal or an item name.
	Match string
}

// itemIDPattern matches literal item identifiers in free text.
var itemIDPattern = regexp.MustCompile(`\bI-[A-Z]{3}-[A-Za-z0-9_-]{12}\b`)

// LinkFinding scans free text for literal item identifiers and known item
// names and returns the matched references. A link is only ever produced
// from an actual textual match; nothing is inferred.
func (r *Reconciler) LinkFinding(text string) ([]Link, error) {
	items, err := r.items.Select(inventory.Query{AllStatuses: true})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]bool, len(items))
	for _, item := range items {
		byID[item.ID] = true
	}

	seen := make(map[string]bool)
	var links []Link
	for _, m := range itemIDPattern.FindAllString(text, -1) {
		if byID[m] && !seen[m] {
			seen[m] = true
			links = append(links, Link{ItemID: m, Match: m})
		}
	}

	lower := strings.ToLower(text)
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		name := displayName(item)
		if len(name) < DefaultFoldThreshold {
			continue
		}
		if containsName(lower, strings.ToLower(name)) {
			seen[item.ID] = true
			links = append(links, Link{ItemID: item.ID, Match: name})
		}
	}

	sort.Slice(links, func(i, j int) bool { return links[i].ItemID < links[j].ItemID })
	return links, nil
}

// FoldReport summarizes a duplicate-folding pass.
type FoldReport struct {
	// Groups is the number of coarse-key groups holding more than one item.
	Groups int

	// Folded is the number of items soft-removed into their canonical peer.
	Folded int
}

// FoldDuplicates groups active items by a coarse key (lower-cased,
// punctuation- and legal-suffix-stripped name, plus record type and
// subject) and folds each group into the item with the lexicographically
// first identifier: observation links are unioned into it, empty attributes
// filled from the duplicates, and the rest soft-removed. Nothing is deleted.
//
// threshold is the minimum coarse-name length eligible for folding; pass 0
// for DefaultFoldThreshold.
func (r *Reconciler) FoldDuplicates(threshold int) (FoldReport, error) {
	if threshold <= 0 {
		threshold = DefaultFoldThreshold
	}

	items, err := r.items.Select(inventory.Query{})
	if err != nil {
		return FoldReport{}, err
	}

	groups := make(map[string][]*record.Item)
	for _, item := range items {
		name := coarseName(displayName(item))
		if len(name) < threshold {
			continue
		}
		key := string(item.Type) + "|" + name + "|" + strings.ToLower(item.Subject)
		groups[key] = append(groups[key], item)
	}

	var report FoldReport
	for key, group := range groups {
		if len(group) < 2 {
			continue
		}
		report.Groups++

		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		canonical, rest := group[0], group[1:]

		fill := make(map[string]string)
		for _, dup := range rest {
			for k, v := range dup.Attributes {
				if strings.TrimSpace(v) == "" {
					continue
				}
				if strings.TrimSpace(canonical.Attributes[k]) == "" && fill[k] == "" {
					fill[k] = v
				}
			}
		}
		if len(fill) > 0 {
			if err := r.items.Update(canonical.ID, fill, "reconciler"); err != nil {
				return report, err
			}
		}

		for _, dup := range rest {
			for _, obsID := range dup.Observations {
				if err := r.items.LinkObservation(canonical.ID, obsID); err != nil {
					return report, err
				}
				// Re-point the citation; a missing observation is tolerable
				// here since links may refer to purged evidence.
				if err := r.observations.SetLinkedItem(obsID, canonical.ID); err != nil && err != observation.ErrNotFound {
					return report, err
				}
			}
			reason := "folded into " + canonical.ID
			if err := r.items.Remove(dup.ID, reason, "reconciler"); err != nil {
				return report, err
			}
			report.Folded++
		}

		r.logger.Info("folded duplicate items",
			"key", key, "canonical", canonical.ID, "folded", len(rest))
	}
	return report, nil
}

// displayName returns the human name of an item: the name attribute, or the
// vendor/product pair for vendor contracts.
func displayName(item *record.Item) string {
	if n := strings.TrimSpace(item.Attributes["name"]); n != "" {
		return n
	}
	if item.Type == identity.TypeVendor {
		v := strings.TrimSpace(item.Attributes["vendor"])
		p := strings.TrimSpace(item.Attributes["product"])
		switch {
		case v != "" && p != "":
			return v + " " + p
		case v != "":
			return v
		case p != "":
			return p
		}
	}
	return ""
}

func domainFor(t identity.RecordType) string {
	switch t {
	case identity.TypeApplication:
		return "applications"
	case identity.TypeInfrastructure:
		return "infrastructure"
	case identity.TypeOrganization:
		return "organization"
	case identity.TypeVendor:
		return "vendors"
	default:
		return string(t)
	}
}

func syntheticClaim(item *record.Item, label string) string {
	return fmt.Sprintf("%s inventory lists %s for the %s", item.Type, label, item.Subject)
}

var (
	nonAlnum      = regexp.MustCompile(`[^a-z0-9 ]+`)
	legalSuffixes = map[string]bool{
		"inc": true, "llc": true, "ltd": true, "corp": true, "co": true,
		"gmbh": true, "plc": true, "sa": true, "ag": true, "limited": true,
		"corporation": true, "incorporated": true, "company": true,
	}
)

// coarseName lower-cases a name, strips punctuation, and drops trailing
// legal-entity suffixes so "BlackLine Inc." and "BlackLine" group together.
func coarseName(name string) string {
	n := nonAlnum.ReplaceAllString(strings.ToLower(name), "")
	words := strings.Fields(n)
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// containsName reports whether lowered text contains name as a whole token
// sequence, not inside a larger word.
func containsName(lowerText, lowerName string) bool {
	idx := 0
	for {
		i := strings.Index(lowerText[idx:], lowerName)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(lowerName)
		beforeOK := start == 0 || !isWordByte(lowerText[start-1])
		afterOK := end == len(lowerText) || !isWordByte(lowerText[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
