package hostlink

import (
	"encoding/json"
	"fmt"

	"github.com/saviobatista/worldflightpedia/internal/types"
)

// envelope is the wire form of a notification: the kind plus the fields of
// the matching variant.
type envelope struct {
	Kind string `json:"kind"`
}

// DecodeNotification decodes a notification envelope. Unrecognised kinds
// decode to types.Unknown.
func DecodeNotification(data []byte) (types.Notification, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}

	var (
		n   types.Notification
		err error
	)
	switch env.Kind {
	case "open":
		var v types.Open
		err = json.Unmarshal(data, &v)
		n = v
	case "quit":
		n = types.Quit{}
	case "exception":
		var v types.Exception
		err = json.Unmarshal(data, &v)
		n = v
	case "event":
		var v types.Event
		err = json.Unmarshal(data, &v)
		n = v
	case "event_filename":
		var v types.EventFilename
		err = json.Unmarshal(data, &v)
		n = v
	case "assigned_object_id":
		var v types.AssignedObjectID
		err = json.Unmarshal(data, &v)
		n = v
	case "simobject_data":
		var v types.SimObjectData
		err = json.Unmarshal(data, &v)
		n = v
	case "":
		return nil, fmt.Errorf("notification without kind")
	default:
		n = types.Unknown{Name: env.Kind}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s notification: %w", env.Kind, err)
	}
	return n, nil
}

// EncodeNotification builds the envelope for n
func EncodeNotification(n types.Notification) ([]byte, error) {
	fields := map[string]any{}
	if _, ok := n.(types.Unknown); !ok {
		raw, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notification: %w", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to flatten notification: %w", err)
		}
	}
	kind := n.Kind()
	if u, ok := n.(types.Unknown); ok {
		kind = u.Name
	}
	fields["kind"] = kind
	return json.Marshal(fields)
}
