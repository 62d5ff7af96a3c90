// Package inbound exposes the booking runtime over HTTP with gin: provider
// webhook intake, booking reads, health and metrics.
//
// A webhook is acknowledged with 2xx only after its effects committed, so any
// non-2xx response asks the provider to redeliver.
package inbound
