// Package webhooks verifies and normalizes inbound provider deliveries and
// hands the resulting events to the booking reconciler.
//
// Verification fails closed. Duplicate suppression is the reconciler's
// processed-event ledger, so a delivery is acknowledged only after its effects
// committed.
package webhooks
