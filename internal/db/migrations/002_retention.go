package migrations

// Retention adds the daily rollup view and the pruning function for old
// statistics snapshots.
var Retention = &Migration{
	ID:   "002_retention",
	Name: "002_retention",
	UpSQL: `
	CREATE OR REPLACE VIEW session_stats_daily AS
	SELECT
		date_trunc('day', time) AS day,
		session_id,
		MAX(total_notifications) AS total_notifications,
		MAX(spawn_requests) AS spawn_requests,
		MAX(remove_requests) AS remove_requests,
		MAX(host_failures) AS host_failures,
		MAX(tours_completed) AS tours_completed
	FROM session_stats
	GROUP BY day, session_id;

	-- Delete snapshots older than keep, returns the number of rows removed
	CREATE OR REPLACE FUNCTION prune_session_stats(keep INTERVAL DEFAULT INTERVAL '90 days')
	RETURNS BIGINT AS $$
	DECLARE
		removed BIGINT;
	BEGIN
		DELETE FROM session_stats WHERE time < NOW() - keep;
		GET DIAGNOSTICS removed = ROW_COUNT;
		RETURN removed;
	END;
	$$ LANGUAGE plpgsql;
	`,
	DownSQL: `
	DROP FUNCTION IF EXISTS prune_session_stats(INTERVAL);
	DROP VIEW IF EXISTS session_stats_daily;
	`,
}
