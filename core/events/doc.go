// Package events defines the events emitted on the event bus while serving
// optimization requests.
//
// Available event types:
//   - OptimizationFinished: a request produced a schedule or a failure
package events
