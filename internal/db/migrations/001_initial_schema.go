package migrations

// InitialSchema creates the session tables
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		-- One row per host session
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			client_name TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions (started_at);

		-- Periodic statistics snapshots
		CREATE TABLE IF NOT EXISTS session_stats (
			time TIMESTAMPTZ NOT NULL,
			session_id TEXT NOT NULL REFERENCES sessions (session_id) ON DELETE CASCADE,
			total_notifications BIGINT NOT NULL,
			panel_messages BIGINT NOT NULL,
			parsed_pois BIGINT NOT NULL,
			spawn_requests BIGINT NOT NULL,
			remove_requests BIGINT NOT NULL,
			data_requests BIGINT NOT NULL,
			host_failures BIGINT NOT NULL,
			acks_tracked BIGINT NOT NULL,
			acks_ignored BIGINT NOT NULL,
			tours_started BIGINT NOT NULL,
			tours_completed BIGINT NOT NULL,
			poi_advances BIGINT NOT NULL,
			timed_resets BIGINT NOT NULL,
			notification_kinds BIGINT[] NOT NULL,
			dispatch_time_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_stats_session_time ON session_stats (session_id, time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS session_stats;
		DROP TABLE IF EXISTS sessions;
	`,
}
