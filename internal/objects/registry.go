package objects

import (
	"time"

	"github.com/google/uuid"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// Kind is the logical operation behind a create request
type Kind int

const (
	KindUnknown Kind = iota
	KindBatchSpawn
	KindTourSpawn
	KindMultiSpawn
	KindOffsetSpawn
)

func (k Kind) String() string {
	switch k {
	case KindBatchSpawn:
		return "batch"
	case KindTourSpawn:
		return "tour"
	case KindMultiSpawn:
		return "multi"
	case KindOffsetSpawn:
		return "offset"
	default:
		return "unknown"
	}
}

// Tracked reports whether objects created by this kind of operation join the
// handle set and are therefore torn down by RemoveAll.
func (k Kind) Tracked() bool {
	return k != KindUnknown && k != KindOffsetSpawn
}

// PendingOp is a create request waiting for its assignment acknowledgement
type PendingOp struct {
	Token     string
	Kind      Kind
	RequestID types.RequestID
	POIIndex  int
	IssuedAt  time.Time
}

// Registry records issued create requests so acknowledgements can be matched
// to the operation that produced them. Ops sharing a request identifier are
// resolved oldest first.
type Registry struct {
	byRequest map[types.RequestID][]PendingOp
	size      int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byRequest: make(map[types.RequestID][]PendingOp)}
}

// Issue records a pending op and returns it with a fresh token
func (r *Registry) Issue(kind Kind, req types.RequestID, poiIndex int, now time.Time) PendingOp {
	op := PendingOp{
		Token:     uuid.New().String(),
		Kind:      kind,
		RequestID: req,
		POIIndex:  poiIndex,
		IssuedAt:  now,
	}
	r.byRequest[req] = append(r.byRequest[req], op)
	r.size++
	return op
}

// Drop removes the op with the given token. It reports whether it was found.
func (r *Registry) Drop(token string) bool {
	for req, ops := range r.byRequest {
		for i, op := range ops {
			if op.Token != token {
				continue
			}
			ops = append(ops[:i], ops[i+1:]...)
			if len(ops) == 0 {
				delete(r.byRequest, req)
			} else {
				r.byRequest[req] = ops
			}
			r.size--
			return true
		}
	}
	return false
}

// Resolve pops the oldest pending op for req
func (r *Registry) Resolve(req types.RequestID) (PendingOp, bool) {
	ops := r.byRequest[req]
	if len(ops) == 0 {
		return PendingOp{}, false
	}
	op := ops[0]
	if len(ops) == 1 {
		delete(r.byRequest, req)
	} else {
		r.byRequest[req] = ops[1:]
	}
	r.size--
	return op, true
}

// Len returns the number of pending ops
func (r *Registry) Len() int {
	return r.size
}

// Clear forgets every pending op
func (r *Registry) Clear() {
	r.byRequest = make(map[types.RequestID][]PendingOp)
	r.size = 0
}

// Classify maps a request identifier to an operation kind by range: at or
// above base is a multi-spawn, the marker identifier is a batch spawn and the
// cube identifier is an offset spawn.
func Classify(req, base types.RequestID) Kind {
	switch {
	case req >= base:
		return KindMultiSpawn
	case req == types.RequestAddMarkers:
		return KindBatchSpawn
	case req == types.RequestAddCube:
		return KindOffsetSpawn
	default:
		return KindUnknown
	}
}
