package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diligence-ai/estate/identity"
	"github.com/diligence-ai/estate/record"
)

func seedQueryStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t, "deal-001")

	in := appInput("Jira", "Atlassian", "target")
	in.Attributes["cost_annual"] = "38000"
	_, err := s.Add(in)
	require.NoError(t, err)

	in2 := appInput("Salesforce", "Salesforce", "target")
	in2.Attributes["cost_annual"] = "120000"
	_, err = s.Add(in2)
	require.NoError(t, err)

	_, err = s.Add(AddInput{
		Type:       identity.TypeVendor,
		Attributes: map[string]string{"vendor": "SAP", "product": "ERP"},
		Subject:    "buyer",
	})
	require.NoError(t, err)
	return s
}

func TestSelectDefaultsToActive(t *testing.T) {
	s := seedQueryStore(t)

	items, err := s.Select(Query{})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	// Results are stable across calls.
	again, err := s.Select(Query{})
	require.NoError(t, err)
	for i := range items {
		assert.Equal(t, items[i].ID, again[i].ID)
	}
}

func TestSelectByTypeAndSubject(t *testing.T) {
	s := seedQueryStore(t)

	apps, err := s.Select(Query{Type: identity.TypeApplication})
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	buyer, err := s.Select(Query{Subject: "buyer"})
	require.NoError(t, err)
	require.Len(t, buyer, 1)
	assert.Equal(t, identity.TypeVendor, buyer[0].Type)
}

func TestSelectNeedsReview(t *testing.T) {
	s := seedQueryStore(t)
	res, err := s.Add(AddInput{
		Type:       identity.TypeApplication,
		Attributes: map[string]string{"name": "MysteryApp"},
		Subject:    "target",
	})
	require.NoError(t, err)

	flagged, err := s.Select(Query{NeedsReview: true})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, res.ID, flagged[0].ID)
}

func TestSelectWithPredicate(t *testing.T) {
	s := seedQueryStore(t)

	expensive, err := s.Select(Query{
		Predicate: `"cost_annual" in attrs && double(attrs["cost_annual"]) > 100000.0`,
	})
	require.NoError(t, err)
	require.Len(t, expensive, 1)
	assert.Equal(t, "Salesforce", expensive[0].Attributes["name"])

	meta, err := s.Select(Query{
		Predicate: `item["type"] == "vendor" && item["subject"] == "buyer"`,
	})
	require.NoError(t, err)
	assert.Len(t, meta, 1)
}

func TestSelectPredicateErrors(t *testing.T) {
	s := seedQueryStore(t)

	_, err := s.Select(Query{Predicate: `this is not CEL`})
	assert.Error(t, err)

	_, err = s.Select(Query{Predicate: `attrs["name"]`})
	assert.Error(t, err, "non-boolean predicates are rejected at compile time")

	// A predicate erroring on one item excludes the item, not the query.
	items, err := s.Select(Query{Predicate: `double(attrs["cost_annual"]) > 0.0`})
	require.NoError(t, err)
	assert.Len(t, items, 2, "the vendor item has no cost_annual and is excluded")
}

func TestSelectStatusFilter(t *testing.T) {
	s := seedQueryStore(t)
	items, err := s.Select(Query{Type: identity.TypeApplication})
	require.NoError(t, err)
	require.NoError(t, s.Remove(items[0].ID, "gone", "reviewer-1"))

	removed, err := s.Select(Query{Status: record.StatusRemoved})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, items[0].ID, removed[0].ID)
}
