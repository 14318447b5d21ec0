package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Operation names an RCP request type.
type Operation string

const (
	OpHello            Operation = "HELLO"
	OpAuth             Operation = "AUTH"
	OpPing             Operation = "PING"
	OpBye              Operation = "BYE"
	OpInfo             Operation = "INFO"
	OpPutMachine       Operation = "PUT_MACHINE"
	OpGetMachine       Operation = "GET_MACHINE"
	OpListMachines     Operation = "LIST_MACHINES"
	OpCreateInstance   Operation = "CREATE_INSTANCE"
	OpGetInstance      Operation = "GET_INSTANCE"
	OpListInstances    Operation = "LIST_INSTANCES"
	OpDeleteInstance   Operation = "DELETE_INSTANCE"
	OpApplyEvent       Operation = "APPLY_EVENT"
	OpBatch            Operation = "BATCH"
	OpSnapshotInstance Operation = "SNAPSHOT_INSTANCE"
	OpWALRead          Operation = "WAL_READ"
	OpWALStats         Operation = "WAL_STATS"
	OpCompact          Operation = "COMPACT"
	OpWatchInstance    Operation = "WATCH_INSTANCE"
	OpWatchAll         Operation = "WATCH_ALL"
	OpUnwatch          Operation = "UNWATCH"
)

// Message type discriminators.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Request is the request envelope.
type Request struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Op     Operation       `json:"op"`
	Params json.RawMessage `json:"params"`
}

// NewRequest builds a request envelope, marshalling params (nil becomes {}).
func NewRequest(id string, op Operation, params any) (Request, error) {
	raw := json.RawMessage(`{}`)
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Request{}, fmt.Errorf("encode %s params: %w", op, err)
		}
		raw = b
	}
	return Request{Type: TypeRequest, ID: id, Op: op, Params: raw}, nil
}

// Status is the response status.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ResponseError carries error details of a failed request.
type ResponseError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// Meta is optional response metadata.
type Meta struct {
	ServerTime string  `json:"server_time,omitempty"`
	Leader     *bool   `json:"leader,omitempty"`
	WALOffset  *uint64 `json:"wal_offset,omitempty"`
	TraceID    string  `json:"trace_id,omitempty"`
}

// Response is the response envelope.
type Response struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
	Meta   *Meta           `json:"meta,omitempty"`
}

func (r Response) OK() bool { return r.Status == StatusOK }

// StreamEvent is pushed by the server for active subscriptions.
type StreamEvent struct {
	Type           string          `json:"type"`
	SubscriptionID string          `json:"subscription_id"`
	InstanceID     string          `json:"instance_id"`
	Machine        string          `json:"machine"`
	Version        uint32          `json:"version"`
	WALOffset      uint64          `json:"wal_offset"`
	FromState      string          `json:"from_state"`
	ToState        string          `json:"to_state"`
	Event          string          `json:"event"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Ctx            json.RawMessage `json:"ctx,omitempty"`
}

// MessageType peeks at the "type" discriminator without decoding the payload.
func MessageType(payload []byte) string {
	return gjson.GetBytes(payload, "type").String()
}

// EncodeRequest marshals a request and wraps it in a frame.
func EncodeRequest(req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return NewFrame(payload).Encode()
}

// EncodeResponse marshals a response and wraps it in a frame.
func EncodeResponse(resp Response) ([]byte, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return NewFrame(payload).Encode()
}

// DecodeResponse decodes a frame payload into a response.
func DecodeResponse(payload []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// DecodeRequest decodes a frame payload into a request.
func DecodeRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}
