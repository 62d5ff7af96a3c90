// Package transport delivers notification commands from the outbox to the
// external dispatcher over HTTP or AMQP, or to the log for local runs.
package transport
