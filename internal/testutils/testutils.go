package testutils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saviobatista/worldflightpedia/internal/types"
)

// MockPOIMessage builds a panel POI_COORDINATES message for the given coordinates
func MockPOIMessage(coords []types.Coordinate) string {
	entries := make([]string, 0, len(coords))
	for i, c := range coords {
		entries = append(entries, fmt.Sprintf(`{"title":"POI %d","lat":%v,"lon":%v}`, i, c.Latitude, c.Longitude))
	}
	return fmt.Sprintf(`{"type":"POI_COORDINATES","data":[%s],"count":%d}`, strings.Join(entries, ","), len(coords))
}

// MockLVarSample builds a sample notification for a one-field L:var definition
func MockLVarSample(req types.RequestID, value float64) types.SimObjectData {
	return types.SimObjectData{
		RequestID: req,
		ObjectID:  types.ObjectIDUser,
		Data:      types.EncodeFloat64s(value),
	}
}

// FakeClock is a manually advanced clock
type FakeClock struct {
	T time.Time
}

// NewFakeClock returns a clock set to a fixed instant
func NewFakeClock() *FakeClock {
	return &FakeClock{T: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	return c.T
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// IsIntegrationTest returns true if integration tests are enabled
func IsIntegrationTest() bool {
	return true // This can be controlled by build tags
}
