// Package notifications pushes monitor milestones to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Each event kind can be switched off in the
// [notifications] config section; the test event is always delivered.
package notifications
