package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"type":"request","id":"1","op":"PING","params":{}}`)
	encoded, err := NewFrame(payload).Encode()
	require.NoError(t, err)
	require.Len(t, encoded, HeaderSize+len(payload))
	require.Equal(t, []byte("RCPX"), encoded[:4])

	frame, err := ReadFrame(bufio.NewReader(bytes.NewReader(encoded)))
	require.NoError(t, err)
	require.Equal(t, Version, frame.Version)
	require.True(t, frame.Flags.Has(FlagCRC))
	require.Equal(t, payload, frame.Payload)
	require.Empty(t, frame.HeaderExt)
}

func TestReadFrameHeaderExtension(t *testing.T) {
	f := NewFrame([]byte(`{}`))
	f.HeaderExt = []byte{0xAA, 0xBB}
	encoded, err := f.Encode()
	require.NoError(t, err)

	got, err := ReadFrame(bufio.NewReader(bytes.NewReader(encoded)))
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, got.HeaderExt)
	require.Equal(t, []byte(`{}`), got.Payload)
}

func TestReadFrameRejectsCorruptPayload(t *testing.T) {
	encoded, err := NewFrame([]byte(`{"test":"data"}`)).Encode()
	require.NoError(t, err)
	encoded[len(encoded)-2] ^= 0xFF

	_, err = ReadFrame(bufio.NewReader(bytes.NewReader(encoded)))
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, ErrCRCMismatch, perr.Kind)
}

func TestReadFrameHeaderValidation(t *testing.T) {
	valid, err := NewFrame([]byte(`{}`)).Encode()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte)
		kind   ErrorKind
	}{
		{"bad magic", func(b []byte) { copy(b, "XXXX") }, ErrInvalidMagic},
		{"bad version", func(b []byte) { binary.BigEndian.PutUint16(b[4:6], 2) }, ErrUnsupportedVersion},
		{"bad flags", func(b []byte) { binary.BigEndian.PutUint16(b[6:8], 0x0100) }, ErrInvalidFlags},
		{"too large", func(b []byte) { binary.BigEndian.PutUint32(b[10:14], MaxPayloadSize+1) }, ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append([]byte(nil), valid...)
			tt.mutate(buf)
			_, err := ReadFrame(bufio.NewReader(bytes.NewReader(buf)))
			var perr *Error
			require.True(t, errors.As(err, &perr), "got %v", err)
			require.Equal(t, tt.kind, perr.Kind)
		})
	}
}

func TestReadFrameTruncated(t *testing.T) {
	encoded, err := NewFrame([]byte(`{"a":1}`)).Encode()
	require.NoError(t, err)

	_, err = ReadFrame(bufio.NewReader(bytes.NewReader(encoded[:HeaderSize+2])))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := NewFrame(make([]byte, MaxPayloadSize+1)).Encode()
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, ErrFrameTooLarge, perr.Kind)
}

func TestMessageTypePeek(t *testing.T) {
	req, err := NewRequest("7", OpPing, nil)
	require.NoError(t, err)
	encoded, err := EncodeRequest(req)
	require.NoError(t, err)

	frame, err := ReadFrame(bufio.NewReader(bytes.NewReader(encoded)))
	require.NoError(t, err)
	require.Equal(t, TypeRequest, MessageType(frame.Payload))

	decoded, err := DecodeRequest(frame.Payload)
	require.NoError(t, err)
	require.Equal(t, "7", decoded.ID)
	require.Equal(t, OpPing, decoded.Op)
	require.JSONEq(t, `{}`, string(decoded.Params))
}

func TestErrorCodeRetryable(t *testing.T) {
	require.True(t, CodeRateLimited.Retryable())
	require.True(t, CodeWALIOError.Retryable())
	require.False(t, CodeInvalidTransition.Retryable())
	require.False(t, CodeNotFound.Retryable())
}
