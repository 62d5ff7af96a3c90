// Package core contains the booking reconciliation domain: normalized provider
// events, the booking state machine, persistence contracts and the service that
// applies events atomically. Provider payload parsing, transports and storage
// drivers live in adapter packages that depend on core, never the reverse.
package core
