package kernel

import "time"

// Clock abstracts wall-clock reads so kernels can be driven
// deterministically in tests.
//
// Thread-safety: implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
}

// WallClock reads the host's real time in UTC.
type WallClock struct{}

func (WallClock) Now() time.Time {
	return time.Now().UTC()
}
