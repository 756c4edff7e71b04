package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diligence-ai/estate/identity"
	"github.com/diligence-ai/estate/record"
)

func TestMergeFromAddNew(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	existing, err := dst.Add(appInput("Jira", "Atlassian", "target"))
	require.NoError(t, err)

	in := appInput("Jira", "Atlassian", "target")
	in.Attributes["users"] = "9999"
	_, err = src.Add(in)
	require.NoError(t, err)
	_, err = src.Add(appInput("Salesforce", "Salesforce", "target"))
	require.NoError(t, err)

	report, err := dst.MergeFrom(src, MergeAddNew, "import-run-7")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 2, dst.Len())

	// add-new never touches present items.
	item, err := dst.Get(existing.ID)
	require.NoError(t, err)
	assert.Empty(t, item.Attributes["users"])
}

func TestMergeFromUpdate(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	existing, err := dst.Add(appInput("Jira", "Atlassian", "target"))
	require.NoError(t, err)

	in := appInput("Jira", "Atlassian", "target")
	in.Attributes["category"] = "devtools"
	_, err = src.Add(in)
	require.NoError(t, err)

	report, err := dst.MergeFrom(src, MergeUpdate, "import-run-8")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Deprecated)

	item, err := dst.Get(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "devtools", item.Attributes["category"])
	// The field-level conflict is recorded, never silently resolved.
	var sawOverwrite bool
	for _, c := range item.Changes {
		if c.Op == "merge-overwrite" {
			sawOverwrite = true
			assert.Equal(t, []string{"category"}, c.Fields)
		}
	}
	assert.True(t, sawOverwrite, "expected a merge-overwrite change entry")
}

func TestSmartMergeDeprecatesAbsentImports(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	// An automated import from the previous pass.
	stale, err := dst.Add(appInput("Lotus Notes", "IBM", "target"))
	require.NoError(t, err)

	// A manual correction a human made independently of the import.
	manual := appInput("Shadow CRM", "Homegrown", "target")
	manual.Origin = record.OriginManual
	kept, err := dst.Add(manual)
	require.NoError(t, err)

	// The new authoritative import knows about neither.
	_, err = src.Add(appInput("Salesforce", "Salesforce", "target"))
	require.NoError(t, err)

	report, err := dst.MergeFrom(src, MergeSmart, "import-run-9")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Deprecated)

	// The stale import is deprecated, not deleted, and excluded from the
	// default active query but retrievable with AllStatuses.
	item, err := dst.Get(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, record.StatusDeprecated, item.Status)
	assert.Equal(t, "not present in latest source", item.RemovalReason)

	active, err := dst.Select(Query{Subject: "target"})
	require.NoError(t, err)
	assert.Len(t, active, 2)
	all, err := dst.Select(Query{Subject: "target", AllStatuses: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// The manual item survives untouched.
	manualItem, err := dst.Get(kept.ID)
	require.NoError(t, err)
	assert.Equal(t, record.StatusActive, manualItem.Status)
}

func TestSmartMergeRestoresRemoved(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	res, err := dst.Add(appInput("Jira", "Atlassian", "target"))
	require.NoError(t, err)
	require.NoError(t, dst.Remove(res.ID, "assumed gone", "reviewer-1"))

	_, err = src.Add(appInput("Jira", "Atlassian", "target"))
	require.NoError(t, err)

	report, err := dst.MergeFrom(src, MergeSmart, "import-run-10")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Restored)

	item, err := dst.Get(res.ID)
	require.NoError(t, err)
	assert.Equal(t, record.StatusActive, item.Status)
}

func TestMergeFromRejectsCrossTenant(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-002")

	_, err := dst.MergeFrom(src, MergeUpdate, "run")
	assert.ErrorIs(t, err, ErrTenantMismatch)
}

func TestMergeFromUnknownStrategy(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	_, err := dst.MergeFrom(src, Strategy("replace-all"), "run")
	assert.Error(t, err)
}

func TestMergeIdempotentReRun(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	_, err := src.Add(appInput("Jira", "Atlassian", "target"))
	require.NoError(t, err)

	first, err := dst.MergeFrom(src, MergeSmart, "run-a")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := dst.MergeFrom(src, MergeSmart, "run-b")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, 1, dst.Len())
}

func TestMergeReportRunID(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	report, err := dst.MergeFrom(src, MergeAddNew, "")
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, MergeAddNew, report.Strategy)
}

func TestMergeDoesNotFoldAcrossIdentities(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	// Same product, differently populated vendor: strict hashing keeps them
	// apart here; folding them is reconciliation's job, not the merge's.
	_, err := dst.Add(appInput("BlackLine", "BlackLine", "target"))
	require.NoError(t, err)
	_, err = src.Add(appInput("BlackLine", "", "target"))
	require.NoError(t, err)

	report, err := dst.MergeFrom(src, MergeUpdate, "run")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 2, dst.Len())
}

func TestMergePreservesCollectionReference(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-002")

	res, err := dst.Add(appInput("Jira", "Atlassian", "target"))
	require.NoError(t, err)

	before, err := dst.Get(res.ID)
	require.NoError(t, err)

	// A failed merge must leave the original contents in place.
	_, err = dst.MergeFrom(src, MergeUpdate, "run")
	require.Error(t, err)

	after, err := dst.Get(res.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Attributes, after.Attributes)
	assert.Equal(t, 1, dst.Len())
}

func TestMergeAcrossTypes(t *testing.T) {
	dst := newTestStore(t, "deal-001")
	src := newTestStore(t, "deal-001")

	_, err := src.Add(AddInput{
		Type:       identity.TypeVendor,
		Attributes: map[string]string{"vendor": "SAP", "product": "ERP", "contract_end": "2027-06-30"},
		Subject:    "target",
	})
	require.NoError(t, err)
	_, err = src.Add(AddInput{
		Type:       identity.TypeInfrastructure,
		Attributes: map[string]string{"name": "fra-dc-01", "category": "datacenter", "environment": "production"},
		Subject:    "target",
	})
	require.NoError(t, err)

	report, err := dst.MergeFrom(src, MergeUpdate, "run")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)

	vendors, err := dst.Select(Query{Type: identity.TypeVendor})
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}
