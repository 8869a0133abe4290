// Package eventexpr evaluates user expressions against delivered events.
//
// Expressions use the expr language and see one event at a time:
//
//	type      "create", "change", "delete" or "move"
//	path      display path (the destination for moves)
//	old_path  source path of a move, empty otherwise
//	dir       path up to the last separator
//	base      last path component
//	ext       extension of base including the dot, lower-cased
//	pid       originating process id
//	sequence  driver sequence number
//	overflow  true when the driver dropped records before this one
//
// Three evaluators:
//   - Filter: a boolean expression deciding whether an event is delivered
//   - Evaluator: custom span attribute expressions
//   - TraceIDEvaluator: groups spans into traces (32 hex chars or hashed)
package eventexpr
