// Package wire implements the length-prefixed text protocol spoken on the
// quiz TCP port: every message is a 64-byte ASCII decimal length header,
// right-padded with spaces, followed by exactly that many payload bytes.
// There is no other delimiter in the stream.
package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HeaderSize is the fixed width of the length header in bytes.
const HeaderSize = 64

// MaxPayloadSize caps how much a single frame may carry. The header has
// room for absurd lengths; believing one would let a hostile client make
// the server allocate the claimed amount before reading a byte.
const MaxPayloadSize = 1 << 20

// ErrMalformedLength reports a header that does not parse as a decimal
// payload length. The connection cannot be resynchronized after this.
var ErrMalformedLength = errors.New("wire: malformed length header")

// Encode frames a payload: length header plus payload bytes.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderSize, HeaderSize+len(payload))

	n := copy(buf, strconv.Itoa(len(payload)))
	for i := n; i < HeaderSize; i++ {
		buf[i] = ' '
	}

	return append(buf, payload...)
}

// WriteFrame encodes the payload and writes the full frame in one call.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(Encode(payload)); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}

	return nil
}

// ReadFrame reads one frame from r and returns the payload. A clean EOF
// before any header byte is returned as io.EOF so the caller can tell an
// orderly disconnect from a truncated message (io.ErrUnexpectedEOF).
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: read header: %w", err)
	}

	length, err := parseLength(header)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		// Header arrived but the body did not: an abrupt close.
		return nil, fmt.Errorf("wire: read payload: %w", io.ErrUnexpectedEOF)
	}

	return payload, nil
}

func parseLength(header []byte) (int, error) {
	s := strings.TrimRight(string(header), " ")

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedLength, s)
	}
	if n > MaxPayloadSize {
		return 0, fmt.Errorf("%w: length %d exceeds limit %d", ErrMalformedLength, n, MaxPayloadSize)
	}

	return n, nil
}
