// Package reconcile keeps the observation and inventory collections
// consistent with each other.
//
// It synthesizes citations for inventory-only items, links free text back to
// canonical items, and folds near-duplicate items that strict identity
// hashing cannot catch ("BlackLine" vs "BlackLine Inc."). Folding is the
// deliberate second line of defense against normalization drift in source
// data; soft removal keeps every folded record recoverable.
//
// Lock discipline: the reconciler only ever calls the stores' public
// methods, one store at a time, in the documented order (item store first,
// then observation store). It never holds both store locks at once and
// never holds a lock across external I/O.
package reconcile
