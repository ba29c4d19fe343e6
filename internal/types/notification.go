package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Notification is one asynchronous message delivered by the host. The concrete
// type is the discriminant.
type Notification interface {
	Kind() string
}

// Open is delivered once after the host session is established
type Open struct {
	ApplicationName string `json:"application_name"`
}

// Quit is delivered when the host is shutting the session down
type Quit struct{}

// Exception reports a host-side failure of an earlier request
type Exception struct {
	Exception uint32 `json:"exception"`
	SendID    uint32 `json:"send_id"`
	Index     uint32 `json:"index"`
}

// Event is a generic subscribed or mapped client event
type Event struct {
	EventID EventID `json:"event_id"`
	Data    uint32  `json:"data"`
}

// EventFilename is a system event carrying a file name (flight loaded, ...)
type EventFilename struct {
	EventID  EventID `json:"event_id"`
	FileName string  `json:"file_name"`
}

// AssignedObjectID acknowledges an object creation request
type AssignedObjectID struct {
	RequestID RequestID `json:"request_id"`
	ObjectID  ObjectID  `json:"object_id"`
}

// SimObjectData is a data sample tagged with the request that produced it.
// Data holds the raw little-endian record for the definition.
type SimObjectData struct {
	RequestID    RequestID    `json:"request_id"`
	ObjectID     ObjectID     `json:"object_id"`
	DefinitionID DefinitionID `json:"definition_id"`
	Data         []byte       `json:"data"`
}

// Unknown carries any discriminant the module does not handle
type Unknown struct {
	Name string `json:"name"`
}

func (Open) Kind() string             { return "open" }
func (Quit) Kind() string             { return "quit" }
func (Exception) Kind() string        { return "exception" }
func (Event) Kind() string            { return "event" }
func (EventFilename) Kind() string    { return "event_filename" }
func (AssignedObjectID) Kind() string { return "assigned_object_id" }
func (SimObjectData) Kind() string    { return "simobject_data" }
func (u Unknown) Kind() string        { return "unknown" }

// Float64 decodes the first field of the record as a float64
func (d SimObjectData) Float64() (float64, error) {
	if len(d.Data) < 8 {
		return 0, fmt.Errorf("short sample: expected 8 bytes, got %d", len(d.Data))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(d.Data[:8])), nil
}

// UserPosition decodes the record as a UserPosition
func (d SimObjectData) UserPosition() (UserPosition, error) {
	if len(d.Data) < 32 {
		return UserPosition{}, fmt.Errorf("short position record: expected 32 bytes, got %d", len(d.Data))
	}
	f := func(i int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(d.Data[i*8 : i*8+8]))
	}
	return UserPosition{
		Latitude:    f(0),
		Longitude:   f(1),
		Altitude:    f(2),
		HeadingTrue: f(3),
	}, nil
}

// EncodeFloat64s packs values in the layout SimObjectData expects
func EncodeFloat64s(values ...float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}
