package types

import (
	"time"
)

// Coordinate is a POI position in degrees. Values are not range checked.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// InitPosition is the initial placement of a created sim object
type InitPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Pitch     float64 `json:"pitch"`
	Bank      float64 `json:"bank"`
	Heading   float64 `json:"heading"`
	OnGround  bool    `json:"on_ground"`
	Airspeed  uint32  `json:"airspeed"`
}

// GroundPosition returns a terrain-clamped placement at c. Altitude is ignored
// by the host when OnGround is set.
func GroundPosition(c Coordinate) InitPosition {
	return InitPosition{
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		OnGround:  true,
	}
}

// UserPosition is the fixed-layout record returned for the user position
// data definition: latitude, longitude, altitude and true heading, in that order.
type UserPosition struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Altitude    float64 `json:"altitude"`
	HeadingTrue float64 `json:"heading_true"`
}

// TourStatus is the snapshot of the tour mirrored to the UI panel
type TourStatus struct {
	SessionID   string    `json:"session_id"`
	Active      bool      `json:"active"`
	ActiveIndex int       `json:"active_index"`
	POICount    int       `json:"poi_count"`
	HandleCount int       `json:"handle_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PanelMessage is a raw message received from the UI panel
type PanelMessage struct {
	Text      string
	Timestamp time.Time
}
