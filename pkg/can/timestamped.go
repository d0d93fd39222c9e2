package can

import "time"

// Timestamped pairs a value with the time elapsed since a reference instant
// chosen by the caller, usually process or capture start. Both fields are
// fixed at construction.
type Timestamped[T any] struct {
	timestamp time.Duration
	value     T
}

// TFrame is a frame tagged with its capture time.
type TFrame = Timestamped[Frame]

// TError is an error code tagged with its capture time.
type TError = Timestamped[Error]

// NewTimestamped wraps value with a precomputed timestamp.
func NewTimestamped[T any](timestamp time.Duration, value T) Timestamped[T] {
	return Timestamped[T]{timestamp: timestamp, value: value}
}

// Now wraps value with the time elapsed since base. base should carry a
// monotonic clock reading (any time.Now result does).
func Now[T any](base time.Time, value T) Timestamped[T] {
	return Timestamped[T]{timestamp: time.Since(base), value: value}
}

// Rewrap returns a Timestamped carrying t's timestamp and a new value, for
// values derived from t that should keep the original capture time.
func Rewrap[R, T any](t Timestamped[T], value R) Timestamped[R] {
	return Timestamped[R]{timestamp: t.timestamp, value: value}
}

// Timestamp returns the elapsed time since the reference instant.
func (t Timestamped[T]) Timestamp() time.Duration { return t.timestamp }

// Value returns the wrapped value.
func (t Timestamped[T]) Value() T { return t.value }

// Destruct splits t into its timestamp and value.
func (t Timestamped[T]) Destruct() (time.Duration, T) { return t.timestamp, t.value }
