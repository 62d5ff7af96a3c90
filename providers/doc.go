// Package providers wires the built-in webhook providers. Each provider lives
// in its own subpackage with a Config, a DefaultConfig and a New constructor.
package providers
