// Package memory owns conversation state for the orchestrator.
//
// Model:
//   - Message: one role-tagged turn (system, user, assistant, tool).
//   - A conversation is a bounded FIFO of non-system messages keyed by an opaque id.
//   - The system message is never stored; it is synthesized on every read from the
//     store's current preamble (optionally prefixed with the current date and time).
//
// Persistence model:
//   - When a snapshot path is configured, the whole store is re-written after every
//     mutation as one atomic snapshot (temp file + rename).
//   - Snapshots carry a magic, a format version and a BLAKE3 digest; a damaged file
//     is reported as ErrCorruptSnapshot rather than silently discarded.
package memory
