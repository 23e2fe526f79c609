// Package memory contains the session history stores. The HistoryStore
// contract lives in core; pick an implementation (in-memory or SQLite) at
// wiring time and hand it to the agent factory.
//
// A history is created empty on first access and only grows by appends, in
// chronological order.
package memory
