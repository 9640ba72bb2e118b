package core

// EventLogger records review audit events. It is the subset of the
// observability event log that core services write to, declared here so
// core does not import observability.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// logEvent writes to events when it is configured; audit failures never
// fail the review operation that produced them.
func logEvent(events EventLogger, eventType string, data map[string]any) {
	if events == nil {
		return
	}
	_ = events.LogEvent(eventType, data)
}
