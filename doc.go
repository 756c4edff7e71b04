// Package estate is the entry point for building and querying the IT
// landscape of a due-diligence engagement.
//
// An Engagement bundles everything one deal needs: the canonical item
// store, the observation store, the reconciler that links and folds them,
// snapshot persistence, and optional review-queue and session-registry
// integrations. All identifiers inside an engagement are deterministic and
// content-derived, so re-importing the same source documents converges on
// the same records instead of duplicating them.
//
// Basic usage:
//
//	eng, err := estate.Open("deal-2024-081",
//	    estate.WithBasePath("/var/lib/estate"),
//	    estate.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(context.Background())
//
//	res, err := eng.Items().Add(inventory.AddInput{
//	    Type:    identity.TypeApplication,
//	    Subject: "target",
//	    Attributes: map[string]string{
//	        "name":   "SAP ERP",
//	        "vendor": "SAP",
//	    },
//	    Source: "it-landscape.xlsx",
//	})
//
// Stores are safe for concurrent use. Persistence is explicit: call
// SaveAll to write one atomic snapshot file per store, LoadAll to restore
// them.
package estate
