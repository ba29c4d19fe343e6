package types

// EventID identifies a client event known to the host
type EventID uint32

const (
	EventFlightLoaded     EventID = 0
	EventSimStart         EventID = 1
	EventFlightPlanLoaded EventID = 2
	EventTriggerM         EventID = 3 // key M, spawn all markers
	EventTriggerN         EventID = 4 // key N, remove all markers
)

// GroupID identifies a notification group
type GroupID uint32

const (
	GroupInput GroupID = 0
)

// InputGroupID identifies an input group
type InputGroupID uint32

const (
	InputGroup InputGroupID = 0
)

// RequestID is the caller-chosen tag echoed back by the host in acknowledgements
type RequestID uint32

const (
	RequestAddMarkers      RequestID = 101
	RequestRemoveMarkers   RequestID = 201
	RequestUserPosForCube  RequestID = 301
	RequestAddCube         RequestID = 401
	RequestLVarSpawn       RequestID = 1002
	RequestLVarStartFlight RequestID = 1003
	RequestLVarNextPoi     RequestID = 1004
	RequestLVarSpawnCube   RequestID = 1005
)

// DefinitionID identifies a registered data definition
type DefinitionID uint32

const (
	DefinitionLVarSpawn       DefinitionID = 1001
	DefinitionLVarStartFlight DefinitionID = 1003
	DefinitionLVarNextPoi     DefinitionID = 1004
	DefinitionLVarSpawnCube   DefinitionID = 1005
	DefinitionUserPosition    DefinitionID = 2001
)

// ObjectID is an opaque host-assigned handle for a created object
type ObjectID uint32

// ObjectIDUser is the host's id for the user aircraft. It doubles as the
// "no object" value.
const ObjectIDUser ObjectID = 0

// Variable names a monitored host variable with edge-triggered handling
type Variable int

const (
	VarSpawnToggle Variable = iota
	VarStartFlight
	VarNextPoi
	VarSpawnCube
)

func (v Variable) String() string {
	switch v {
	case VarSpawnToggle:
		return "L:spawnAllLasersRed"
	case VarStartFlight:
		return "L:WFP_StartFlight"
	case VarNextPoi:
		return "L:WFP_NextPoi"
	case VarSpawnCube:
		return "L:WFP_SPAWN_CUBE"
	default:
		return "unknown"
	}
}

// Period is the sampling period of a data request
type Period uint32

const (
	PeriodNever Period = iota
	PeriodOnce
	PeriodVisualFrame
	PeriodSimFrame
	PeriodSecond
)

// DataRequestFlag modifies when a periodic sample is delivered
type DataRequestFlag uint32

const (
	DataRequestDefault DataRequestFlag = 0
	DataRequestChanged DataRequestFlag = 1
)

// DataType is the wire type of a data definition field
type DataType uint32

const (
	DataTypeFloat64 DataType = 4
)
