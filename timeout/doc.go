// Package timeout bounds how long callers wait for tool executions.
//
// A Manager resolves the effective Policy for a tool (per-tool override over
// the global default), races tool bodies against a deadline and tracks one
// cancellation Token per execution. Cancellation is cooperative: a body that
// ignores its context keeps running after the caller has stopped waiting.
package timeout
