package protocol

import "fmt"

// ErrorKind classifies framing failures.
type ErrorKind int

const (
	ErrInvalidMagic ErrorKind = iota + 1
	ErrUnsupportedVersion
	ErrFrameTooLarge
	ErrCRCMismatch
	ErrInvalidFlags
)

// Error describes a malformed or unacceptable frame.
type Error struct {
	Kind     ErrorKind
	Magic    [4]byte
	Version  uint16
	Flags    Flags
	Size     uint32
	Expected uint32
	Actual   uint32
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrInvalidMagic:
		return fmt.Sprintf("invalid magic bytes: expected 'RCPX', got %q", e.Magic[:])
	case ErrUnsupportedVersion:
		return fmt.Sprintf("unsupported protocol version: %d", e.Version)
	case ErrFrameTooLarge:
		return fmt.Sprintf("frame too large: %d bytes (max %d)", e.Size, MaxPayloadSize)
	case ErrCRCMismatch:
		return fmt.Sprintf("CRC mismatch: expected %#x, got %#x", e.Expected, e.Actual)
	case ErrInvalidFlags:
		return fmt.Sprintf("invalid frame flags: %#x", uint16(e.Flags))
	default:
		return "protocol error"
	}
}

// ErrorCode is a stable server error code carried in error responses.
type ErrorCode string

const (
	CodeUnsupportedProtocol  ErrorCode = "UNSUPPORTED_PROTOCOL"
	CodeBadRequest           ErrorCode = "BAD_REQUEST"
	CodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	CodeAuthFailed           ErrorCode = "AUTH_FAILED"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeMachineNotFound      ErrorCode = "MACHINE_NOT_FOUND"
	CodeMachineVersionExists ErrorCode = "MACHINE_VERSION_EXISTS"
	CodeInstanceNotFound     ErrorCode = "INSTANCE_NOT_FOUND"
	CodeInstanceExists       ErrorCode = "INSTANCE_EXISTS"
	CodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	CodeGuardFailed          ErrorCode = "GUARD_FAILED"
	CodeConflict             ErrorCode = "CONFLICT"
	CodeWALIOError           ErrorCode = "WAL_IO_ERROR"
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeRateLimited          ErrorCode = "RATE_LIMITED"
)

// Retryable reports whether the server considers the code transient.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeWALIOError, CodeRateLimited, CodeInternalError:
		return true
	default:
		return false
	}
}
