// Package runner drives one conversational turn: it records the user's
// prompt, asks the model endpoint for a reply, executes any tool calls the
// model requests, and repeats until the model answers in text.
//
// Invariants:
//   - every assistant tool-call turn is stored immediately followed by exactly
//     one tool turn per call id, in call order
//   - tool choice is "auto" until the round budget is spent, then "none"
//   - nothing already stored is rolled back when a later step fails
//   - turns on the same conversation never interleave
//   - a turn never stores more than fits in the conversation's bounded window,
//     so its own prompt is never evicted
//
// Flow:
//
//	user -> assistant(tool calls) -> tool... -> assistant(text)
package runner
