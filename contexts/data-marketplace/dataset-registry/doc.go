// Package datasetregistry is the dataset access registry and escrow ledger.
//
// Owners register datasets with a price and an access tier, buyers pay the
// exact price to obtain a permanent grant, and proceeds accrue in per-owner
// escrow until withdrawn. All ledger state is owned by application.Registry,
// which serializes every mutation; adapters persist it and relay its events.
package datasetregistry
