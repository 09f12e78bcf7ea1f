package wire_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizd/internal/wire"
)

func TestEncode_HeaderFormat(t *testing.T) {
	t.Parallel()

	frame := wire.Encode([]byte("LEADERBOARD"))

	require.Len(t, frame, wire.HeaderSize+len("LEADERBOARD"))
	assert.Equal(t, "11"+strings.Repeat(" ", wire.HeaderSize-2), string(frame[:wire.HeaderSize]))
	assert.Equal(t, "LEADERBOARD", string(frame[wire.HeaderSize:]))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte("REGISTER alice pw1"),
		[]byte(strings.Repeat("a", 9)),
		[]byte(strings.Repeat("b", 10)),       // two-digit length
		[]byte(strings.Repeat("c", 12345)),    // five-digit length
		{0x00, 0xff, 0x7f, 0x0a, 0x20, 0x27}, // raw bytes survive untouched
	}

	var buf bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, wire.WriteFrame(&buf, p))
	}

	for _, want := range payloads {
		got, err := wire.ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := wire.ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF, "drained stream should report a clean EOF")
}

func TestReadFrame_MalformedLength(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not a number":    "abc",
		"negative":        "-1",
		"empty header":    "",
		"trailing letter": "12x",
	}

	for name, header := range tests {
		header := header
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			padded := header + strings.Repeat(" ", wire.HeaderSize-len(header))
			_, err := wire.ReadFrame(strings.NewReader(padded))
			assert.ErrorIs(t, err, wire.ErrMalformedLength)
		})
	}
}

func TestReadFrame_OversizedLength(t *testing.T) {
	t.Parallel()

	// A frame claiming ~1 TB must be rejected before any allocation, not
	// trusted.
	header := "999999999999" + strings.Repeat(" ", wire.HeaderSize-12)
	_, err := wire.ReadFrame(strings.NewReader(header))
	assert.ErrorIs(t, err, wire.ErrMalformedLength)

	// The limit itself is still a valid frame.
	payload := bytes.Repeat([]byte{'x'}, wire.MaxPayloadSize)
	got, err := wire.ReadFrame(bytes.NewReader(wire.Encode(payload)))
	require.NoError(t, err)
	assert.Len(t, got, wire.MaxPayloadSize)
}

func TestReadFrame_Truncated(t *testing.T) {
	t.Parallel()

	t.Run("partial header", func(t *testing.T) {
		t.Parallel()

		_, err := wire.ReadFrame(strings.NewReader("12"))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("partial payload", func(t *testing.T) {
		t.Parallel()

		frame := wire.Encode([]byte("LEADERBOARD"))
		_, err := wire.ReadFrame(bytes.NewReader(frame[:len(frame)-3]))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}
