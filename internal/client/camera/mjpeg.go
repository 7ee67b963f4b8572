package camera

import (
	"bytes"
	"errors"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameBytes bounds one JPEG in an MJPEG stream.
const maxFrameBytes = 8 << 20

var errFrameTooLarge = errors.New("jpeg frame exceeds size limit")

// splitJPEG is a bufio.SplitFunc that yields one complete JPEG per token
// from a concatenated MJPEG byte stream. Bytes before a start-of-image
// marker are skipped.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it begins the next marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if len(data)-start > maxFrameBytes {
			return 0, nil, errFrameTooLarge
		}
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
