// Package browser executes planner-issued browser actions against a pooled
// session.
//
// The action vocabulary is closed: every ActionKind has exactly one entry in
// the handler table (see registry.go), and Definitions exposes the same table
// to the planner as function-calling tools. Adding an action means adding one
// kind, one argument type and one handler.
//
// # Failure Model
//
// Execute never returns an error. Any failure, including malformed arguments,
// unknown actions, timeouts and panics inside a handler, becomes a text result
// of the form
//
//	Error executing <name>: <cause>
//
// which the agent loop feeds back to the planner so it can choose another path.
// Pages that look like bot challenges (captcha redirects, "Just a moment..."
// interstitials, 403/429 responses) produce an explicit warning telling the
// planner not to retry that URL.
//
// # Fan-out
//
// fetch_pages opens every URL in its own sibling page in parallel, waits for
// all of them, and reports results in request order with a header per URL.
// One failing URL yields an error segment; the others are unaffected.
//
// # Progress Recording
//
// Handlers report navigations, source URLs and captured page text through a
// Recorder. Recording always happens on the calling goroutine, after any
// fan-out has completed, so recorders need no locking.
package browser
