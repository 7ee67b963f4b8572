package video

import "time"

// Frame is one encoded still taken from a capture stream. Data must not be
// modified once the frame has been published.
type Frame struct {
	Seq        uint64
	Data       []byte
	Format     string
	CapturedAt time.Time
}
