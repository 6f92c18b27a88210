// Package pipeline drives messages through the triage state machine.
//
// The Orchestrator runs one batch at a time:
//   - Records left in a non-terminal stage by an earlier run are resumed first
//   - New messages are fetched, validated, claimed, and acknowledged
//   - Every record is processed on a bounded worker pool until it is archived,
//     fails, or the batch deadline passes
//
// Each stage transition is persisted before the next one starts, so a crash
// or a deadline leaves records resumable from the last completed stage.
// Side effects are recorded as dispatched before a record is archived, and the
// mailbox is asked whether an effect already happened before it is repeated.
package pipeline
