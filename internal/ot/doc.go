// Package ot implements the client-side Operational Transformation engine.
//
// The engine reconciles concurrent plain-text edits. It owns no text: it
// keeps a linear log of applied operations, a monotonic revision counter,
// the local operations still awaiting acknowledgement from the server, and
// linear undo/redo stacks of inverse operations.
//
// POSITIONS:
//
// Positions and lengths count characters (Unicode code points), not bytes.
// ApplyToText converts to runes before splicing, so multi-byte content
// never splits a code point.
//
// TRANSFORM RULES:
//
// Transform(a, b) returns (a', b') where a' is a rebased past b and b' is b
// rebased past a.
//   - insert/insert at the same position: a keeps priority and is returned
//     unshifted; b moves right by len(a.Content).
//   - insert vs delete: an insert strictly before the range pushes the
//     delete right; an insert at or after the range end moves left by the
//     delete length; an insert inside the range leaves both untouched.
//   - delete/delete: disjoint ranges shift past each other; overlapping
//     ranges collapse into one delete covering the union plus a zero-length
//     placeholder delete.
//   - retain is inert against everything.
//
// CONCURRENCY:
//
// Engine guards its state with a mutex, so one Engine may be shared between
// the websocket read goroutine and the editor goroutine. History, Pending,
// and the stacks are only exposed as snapshot copies.
package ot
