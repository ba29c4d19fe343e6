package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/saviobatista/worldflightpedia/internal/stats"
)

// counterColumns are the session_stats counter columns, keyed like the
// stats snapshot.
var counterColumns = []string{
	"total_notifications",
	"panel_messages",
	"parsed_pois",
	"spawn_requests",
	"remove_requests",
	"data_requests",
	"host_failures",
	"acks_tracked",
	"acks_ignored",
	"tours_started",
	"tours_completed",
	"poi_advances",
	"timed_resets",
}

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// NewWithDB wraps an open database handle
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// CreateSession records the start of a host session
func (c *Client) CreateSession(sessionID, clientName string, startedAt time.Time) error {
	query := `
		INSERT INTO sessions (session_id, client_name, started_at)
		VALUES ($1, $2, $3)
	`
	if _, err := c.db.Exec(query, sessionID, clientName, startedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// EndSession records the end of a host session
func (c *Client) EndSession(sessionID string, endedAt time.Time) error {
	query := `
		UPDATE sessions SET ended_at = $1
		WHERE session_id = $2 AND ended_at IS NULL
	`
	if _, err := c.db.Exec(query, endedAt, sessionID); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// StoreSessionStats stores a statistics snapshot for a session
func (c *Client) StoreSessionStats(sessionID string, snapshot map[string]interface{}) error {
	query := `
		INSERT INTO session_stats (
			time, session_id, total_notifications, panel_messages, parsed_pois,
			spawn_requests, remove_requests, data_requests, host_failures,
			acks_tracked, acks_ignored, tours_started, tours_completed,
			poi_advances, timed_resets, notification_kinds,
			dispatch_time_ms, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	args := []interface{}{time.Now(), sessionID}
	for _, col := range counterColumns {
		args = append(args, int64(counter(snapshot, col)))
	}

	kinds, _ := snapshot["notification_kinds"].([len(stats.NotificationKinds)]uint64)
	kindsArray := make([]int64, len(kinds))
	for i, v := range kinds {
		kindsArray[i] = int64(v)
	}

	dispatchTime, _ := snapshot["dispatch_time"].(time.Duration)
	uptime, _ := snapshot["uptime"].(time.Duration)

	args = append(args, pq.Array(kindsArray), dispatchTime.Milliseconds(), int64(uptime.Seconds()))

	if _, err := c.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to store session stats: %w", err)
	}
	return nil
}

// GetSessionStats retrieves the snapshots of a session for a time range
func (c *Client) GetSessionStats(sessionID string, start, end time.Time) ([]map[string]interface{}, error) {
	query := `
		SELECT
			time, total_notifications, panel_messages, parsed_pois,
			spawn_requests, remove_requests, data_requests, host_failures,
			acks_tracked, acks_ignored, tours_started, tours_completed,
			poi_advances, timed_resets, notification_kinds,
			dispatch_time_ms, uptime_seconds
		FROM session_stats
		WHERE session_id = $1 AND time BETWEEN $2 AND $3
		ORDER BY time DESC
	`

	rows, err := c.db.Query(query, sessionID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var (
			timestamp      time.Time
			counters       = make([]int64, len(counterColumns))
			kinds          []int64
			dispatchTimeMs int64
			uptimeSeconds  int64
		)

		dest := []interface{}{&timestamp}
		for i := range counters {
			dest = append(dest, &counters[i])
		}
		dest = append(dest, pq.Array(&kinds), &dispatchTimeMs, &uptimeSeconds)

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		var kindCounts [len(stats.NotificationKinds)]uint64
		for i, v := range kinds {
			if i < len(kindCounts) {
				kindCounts[i] = uint64(v)
			}
		}

		stat := map[string]interface{}{
			"time":               timestamp,
			"notification_kinds": kindCounts,
			"dispatch_time":      time.Duration(dispatchTimeMs) * time.Millisecond,
			"uptime_seconds":     uptimeSeconds,
		}
		for i, col := range counterColumns {
			stat[col] = counters[i]
		}
		out = append(out, stat)
	}

	return out, rows.Err()
}

// PruneSessionStats deletes snapshots older than keep and returns how many
// rows were removed
func (c *Client) PruneSessionStats(keep time.Duration) (int64, error) {
	var removed int64
	interval := fmt.Sprintf("%d seconds", int64(keep.Seconds()))
	if err := c.db.QueryRow(`SELECT prune_session_stats($1::interval)`, interval).Scan(&removed); err != nil {
		return 0, fmt.Errorf("failed to prune session stats: %w", err)
	}
	return removed, nil
}

func counter(snapshot map[string]interface{}, key string) uint64 {
	switch v := snapshot[key].(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}
