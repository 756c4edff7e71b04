package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/diligence-ai/estate/identity"
	"github.com/diligence-ai/estate/record"
	"github.com/diligence-ai/estate/snapshot"
)

// Query selects items. Zero values match everything. The store's tenant is
// applied before any other filter, so a buggy caller can never widen a query
// across deals.
type Query struct {
	// Type restricts to one record type.
	Type identity.RecordType

	// Subject restricts to one side of the engagement.
	Subject string

	// Status restricts to one lifecycle state; defaults to active.
	Status record.Status

	// AllStatuses lifts the status restriction entirely, exposing removed
	// and deprecated items to callers that ask for history.
	AllStatuses bool

	// NeedsReview restricts to flagged items when true.
	NeedsReview bool

	// Predicate is an optional CEL expression evaluated per item after the
	// structural filters. Two variables are in scope:
	//
	//	attrs: map<string,string> of the item's attributes
	//	item:  map<string,string> with id, type, subject, status, category, origin
	//
	// Example: `double(attrs["cost_annual"]) > 10000.0 && item["subject"] == "target"`
	Predicate string
}

// celEnv builds the shared evaluation environment for query predicates.
func celEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("item", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// compilePredicate compiles a CEL expression into an evaluable program.
func compilePredicate(expr string) (cel.Program, error) {
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("build predicate environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", expr, iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("predicate %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("plan predicate %q: %w", expr, err)
	}
	return prg, nil
}

// Select returns copies of every item matching the query, sorted by ID for
// stable output. Predicate compilation errors fail the whole query; a
// predicate that errors on one item (missing key, bad number) just excludes
// that item.
func (s *Store) Select(q Query) ([]*record.Item, error) {
	var prg cel.Program
	if strings.TrimSpace(q.Predicate) != "" {
		var err error
		prg, err = compilePredicate(q.Predicate)
		if err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	status := q.Status
	if status == "" {
		status = record.StatusActive
	}

	var out []*record.Item
	for _, item := range s.byID {
		// Tenant first: nothing else gets a chance to leak across deals.
		if item.Tenant != s.tenant && item.Tenant != snapshot.TenantUnscoped {
			continue
		}
		if !q.AllStatuses && item.Status != status {
			continue
		}
		if q.Type != "" && item.Type != q.Type {
			continue
		}
		if q.Subject != "" && !strings.EqualFold(item.Subject, q.Subject) {
			continue
		}
		if q.NeedsReview && !item.NeedsReview {
			continue
		}
		if prg != nil && !evalPredicate(prg, item) {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Active is shorthand for Select over active items of one subject.
func (s *Store) Active(subject string) []*record.Item {
	items, _ := s.Select(Query{Subject: subject})
	return items
}

func evalPredicate(prg cel.Program, item *record.Item) bool {
	meta := map[string]string{
		"id":       item.ID,
		"type":     string(item.Type),
		"subject":  item.Subject,
		"status":   string(item.Status),
		"category": item.Category,
		"origin":   string(item.Origin),
	}
	out, _, err := prg.Eval(map[string]any{
		"attrs": item.Attributes,
		"item":  meta,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}
