// Package core defines the shared domain model of convoflow: agents,
// conversations, the append-only message ledger, tool call/result types and
// the ChatStreamChunk wire protocol emitted by the orchestrator. Higher level
// packages (orchestrator, store, routing, knowledge) depend on core; core
// depends on nothing but the standard library and ID generation.
package core
