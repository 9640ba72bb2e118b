package observability

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteEventLog implements EventLog on a SQLite database.
type sqliteEventLog struct {
	db *sql.DB
}

// NewSQLiteEventLog opens (or creates) a SQLite event log at path.
func NewSQLiteEventLog(path string) (EventLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("event log: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("event log: wal: %w", err)
	}

	l := &sqliteEventLog{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *sqliteEventLog) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			time    TEXT NOT NULL,
			level   TEXT NOT NULL,
			type    TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			data    TEXT NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`)
	if err != nil {
		return fmt.Errorf("event log: migrate: %w", err)
	}
	return nil
}

func (l *sqliteEventLog) Write(event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshalling event data: %w", err)
	}
	_, err = l.db.Exec(`INSERT INTO events (time, level, type, message, data) VALUES (?, ?, ?, ?, ?)`,
		event.Time.UTC().Format(time.RFC3339Nano), event.Level, event.Type, event.Message, string(data))
	if err != nil {
		return fmt.Errorf("event log: write: %w", err)
	}
	return nil
}

func (l *sqliteEventLog) Read(filter EventFilter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Level != "" {
		where = append(where, "level = ?")
		args = append(args, filter.Level)
	}

	query := `SELECT time, level, type, message, data FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("event log: read: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ts, data string
			e        Event
		)
		if err := rows.Scan(&ts, &e.Level, &e.Type, &e.Message, &data); err != nil {
			return nil, fmt.Errorf("event log: scan: %w", err)
		}
		e.Time, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			continue
		}
		if data != "" && data != "null" {
			_ = json.Unmarshal([]byte(data), &e.Data)
		}
		// Time bounds are applied on parsed values; stored text does not
		// sort reliably across fractional-second widths.
		if matchesEventFilter(e, filter) {
			events = append(events, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event log: rows: %w", err)
	}
	return events, nil
}

func (l *sqliteEventLog) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}
