// Package core provides the shared domain types and small contracts used by
// the toolmesh packages:
//
//   - Content / Part (model-facing conversation segments)
//   - Message (role-tagged session history entries)
//   - ToolContext (the surface a tool body sees while it runs)
//   - the error taxonomy for tools, agents and the coordinator
//   - pluggable store contracts (HistoryStore, VectorStore, Embedder)
//
// Implementations live in sibling packages (memory, retrieval, tool, agent).
// Keeping the contracts here avoids dependency cycles between them.
package core
