package can

import "time"

// Event is one observation on the bus: a frame, or an error when IsError is
// set. Only the matching field is meaningful.
type Event struct {
	IsError bool
	Frame   TFrame
	Error   TError
}

// FrameEvent wraps a timestamped frame.
func FrameEvent(tf TFrame) Event { return Event{Frame: tf} }

// ErrorEvent wraps a timestamped error.
func ErrorEvent(te TError) Event { return Event{IsError: true, Error: te} }

// Timestamp returns the timestamp of whichever value the event holds.
func (e Event) Timestamp() time.Duration {
	if e.IsError {
		return e.Error.Timestamp()
	}
	return e.Frame.Timestamp()
}
