package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// TourStatusTTL is how long a mirrored status survives without refresh
const TourStatusTTL = time.Hour

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func tourKey(sessionID string) string {
	return fmt.Sprintf("tour:%s", sessionID)
}

// StoreTourStatus mirrors the tour status of a session
func (c *Client) StoreTourStatus(ctx context.Context, status types.TourStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal tour status: %w", err)
	}

	if err := c.client.Set(ctx, tourKey(status.SessionID), data, TourStatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to store tour status: %w", err)
	}
	return nil
}

// GetTourStatus retrieves the mirrored status. It returns nil when absent.
func (c *Client) GetTourStatus(ctx context.Context, sessionID string) (*types.TourStatus, error) {
	data, err := c.client.Get(ctx, tourKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour status: %w", err)
	}

	var status types.TourStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tour status: %w", err)
	}
	return &status, nil
}

// DeleteTourStatus removes the mirrored status
func (c *Client) DeleteTourStatus(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, tourKey(sessionID)).Err()
}
