// Package protocol implements the RCP wire format spoken by rstmdb servers:
// a fixed 18-byte binary frame header followed by a JSON payload.
//
// Frame layout (big-endian):
//
//	+--------+---------+--------+------------+-------------+--------+
//	| magic  | version | flags  | header_len | payload_len | crc32c |
//	| 4 bytes| 2 bytes |2 bytes |  2 bytes   |   4 bytes   | 4 bytes|
//	+--------+---------+--------+------------+-------------+--------+
//	| [header_ext] | payload                                        |
//	+--------------+------------------------------------------------+
package protocol

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
)

const (
	// Version is the only protocol version this package speaks.
	Version uint16 = 1

	// DefaultPort is the default rstmdb server port.
	DefaultPort = 7401

	// HeaderSize is the size of the fixed frame header.
	HeaderSize = 18

	// MaxPayloadSize caps a single frame payload (16 MiB).
	MaxPayloadSize = 16 * 1024 * 1024
)

// Magic identifies RCP frames.
var Magic = [4]byte{'R', 'C', 'P', 'X'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Flags is the frame flags bitfield.
type Flags uint16

const (
	FlagCRC        Flags = 1 << 0
	FlagCompressed Flags = 1 << 1
	FlagStream     Flags = 1 << 2
	FlagEndStream  Flags = 1 << 3

	validFlagsV1 Flags = 0x000F
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Frame is a decoded RCP frame.
type Frame struct {
	Version   uint16
	Flags     Flags
	HeaderExt []byte
	Payload   []byte
}

// NewFrame wraps a payload in a CRC-protected frame.
func NewFrame(payload []byte) Frame {
	return Frame{Version: Version, Flags: FlagCRC, Payload: payload}
}

// Encode serializes the frame including its header.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, &Error{Kind: ErrFrameTooLarge, Size: uint32(len(f.Payload))}
	}
	buf := make([]byte, HeaderSize+len(f.HeaderExt)+len(f.Payload))
	copy(buf[0:4], Magic[:])
	binary.BigEndian.PutUint16(buf[4:6], f.Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(f.Flags))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(f.HeaderExt)))
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(f.Payload)))
	var sum uint32
	if f.Flags.Has(FlagCRC) {
		sum = crc32.Checksum(f.Payload, castagnoli)
	}
	binary.BigEndian.PutUint32(buf[14:18], sum)
	n := copy(buf[HeaderSize:], f.HeaderExt)
	copy(buf[HeaderSize+n:], f.Payload)
	return buf, nil
}

// ReadFrame reads exactly one frame from r, validating the header and CRC.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}

	var magic [4]byte
	copy(magic[:], hdr[0:4])
	if magic != Magic {
		return Frame{}, &Error{Kind: ErrInvalidMagic, Magic: magic}
	}
	version := binary.BigEndian.Uint16(hdr[4:6])
	if version != Version {
		return Frame{}, &Error{Kind: ErrUnsupportedVersion, Version: version}
	}
	flags := Flags(binary.BigEndian.Uint16(hdr[6:8]))
	if flags&^validFlagsV1 != 0 {
		return Frame{}, &Error{Kind: ErrInvalidFlags, Flags: flags}
	}
	headerLen := int(binary.BigEndian.Uint16(hdr[8:10]))
	payloadLen := binary.BigEndian.Uint32(hdr[10:14])
	if payloadLen > MaxPayloadSize {
		return Frame{}, &Error{Kind: ErrFrameTooLarge, Size: payloadLen}
	}
	expected := binary.BigEndian.Uint32(hdr[14:18])

	body := make([]byte, headerLen+int(payloadLen))
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}

	frame := Frame{
		Version:   version,
		Flags:     flags,
		HeaderExt: body[:headerLen],
		Payload:   body[headerLen:],
	}
	if flags.Has(FlagCRC) {
		if actual := crc32.Checksum(frame.Payload, castagnoli); actual != expected {
			return Frame{}, &Error{Kind: ErrCRCMismatch, Expected: expected, Actual: actual}
		}
	}
	return frame, nil
}
