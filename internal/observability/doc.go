// Package observability records the review audit trail and derives review
// metrics and alerts from it. Events are stored either as JSON Lines or in
// a SQLite database; metrics and alerts are computed on demand.
package observability
