// Package session holds the per-user interaction state of the map: filter
// mode, buffer radius, layer visibility and the last buffer selection.
package session

import "github.com/rotisserie/eris"

// State is the position of a session in the filter workflow.
type State int

const (
	// StateIdle means filter mode is off and map clicks are ignored.
	StateIdle State = iota
	// StateArmed means filter mode is on and the next click draws a buffer.
	StateArmed
	// StateBufferComputed means a click produced the current selection.
	StateBufferComputed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateBufferComputed:
		return "buffer_computed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrUnknownLayer is returned when a layer name does not exist.
var ErrUnknownLayer = eris.New("session: unknown layer")

// EmptyBufferMessage is shown after a click that matched nothing.
const EmptyBufferMessage = "No students found in current radius. Click again on the map."

// ExportStatus tells the client whether to show the export button or the
// help message.
type ExportStatus struct {
	Visible bool   `json:"visible"`
	Message string `json:"message,omitempty"`
}
