package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/saviobatista/worldflightpedia/internal/db"
	"github.com/saviobatista/worldflightpedia/internal/redis"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

const queryTimeout = 10 * time.Second

// TourReader reads the mirrored tour status of a session
type TourReader interface {
	GetTourStatus(ctx context.Context, sessionID string) (*types.TourStatus, error)
}

// StatsReader reads the stored statistics snapshots of a session
type StatsReader interface {
	GetSessionStats(sessionID string, start, end time.Time) ([]map[string]interface{}, error)
}

type options struct {
	session   string
	redisAddr string
	dbURL     string
	since     time.Duration
}

// report is what wfpstatus prints for a session
type report struct {
	SessionID string                   `json:"session_id"`
	Tour      *types.TourStatus        `json:"tour,omitempty"`
	Stats     []map[string]interface{} `json:"stats,omitempty"`
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("wfpstatus", flag.ContinueOnError)
	fs.SetOutput(output)

	opts := &options{}
	fs.StringVar(&opts.session, "session", "", "Session id to inspect")
	fs.StringVar(&opts.redisAddr, "redis", os.Getenv("REDIS_ADDR"), "Redis address of the tour status mirror")
	fs.StringVar(&opts.dbURL, "db", os.Getenv("DB_CONN_STR"), "Database connection string of the statistics store")
	fs.DurationVar(&opts.since, "since", 24*time.Hour, "How far back to read statistics snapshots")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.session == "" {
		return nil, fmt.Errorf("-session is required")
	}
	if opts.redisAddr == "" && opts.dbURL == "" {
		return nil, fmt.Errorf("at least one of -redis or -db is required")
	}
	if opts.since <= 0 {
		return nil, fmt.Errorf("-since must be positive")
	}
	return opts, nil
}

// run collects the report for opts.session from the configured sources and
// writes it as JSON. Either reader may be nil.
func run(ctx context.Context, opts *options, tours TourReader, st StatsReader, now time.Time, out io.Writer) error {
	r := report{SessionID: opts.session}

	if tours != nil {
		qctx, cancel := context.WithTimeout(ctx, queryTimeout)
		status, err := tours.GetTourStatus(qctx, opts.session)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to read tour status: %w", err)
		}
		r.Tour = status
	}

	if st != nil {
		snapshots, err := st.GetSessionStats(opts.session, now.Add(-opts.since), now)
		if err != nil {
			return fmt.Errorf("failed to read session stats: %w", err)
		}
		r.Stats = snapshots
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logger.Error("invalid arguments", "err", err)
		os.Exit(2)
	}

	var (
		tours TourReader
		st    StatsReader
	)
	if opts.redisAddr != "" {
		rc, err := redis.New(opts.redisAddr)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer rc.Close()
		tours = rc
	}
	if opts.dbURL != "" {
		dc, err := db.New(opts.dbURL)
		if err != nil {
			logger.Error("failed to open database", "err", err)
			os.Exit(1)
		}
		defer dc.Close()
		st = dc
	}

	if err := run(context.Background(), opts, tours, st, time.Now(), os.Stdout); err != nil {
		logger.Error("status failed", "err", err)
		os.Exit(1)
	}
}
