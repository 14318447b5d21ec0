package protocol

import "encoding/json"

type HelloParams struct {
	ProtocolVersion uint16   `json:"protocol_version"`
	ClientName      string   `json:"client_name,omitempty"`
	WireModes       []string `json:"wire_modes"`
	Features        []string `json:"features"`
}

type HelloResult struct {
	ProtocolVersion uint16   `json:"protocol_version"`
	WireMode        string   `json:"wire_mode"`
	ServerName      string   `json:"server_name"`
	ServerVersion   string   `json:"server_version"`
	Features        []string `json:"features"`
}

type AuthParams struct {
	Method string `json:"method"`
	Token  string `json:"token"`
}

type PutMachineParams struct {
	Machine    string          `json:"machine"`
	Version    uint32          `json:"version"`
	Definition json.RawMessage `json:"definition"`
	Checksum   string          `json:"checksum,omitempty"`
}

type PutMachineResult struct {
	Machine        string `json:"machine"`
	Version        uint32 `json:"version"`
	StoredChecksum string `json:"stored_checksum"`
	Created        bool   `json:"created"`
}

type CreateInstanceParams struct {
	InstanceID     string         `json:"instance_id,omitempty"`
	Machine        string         `json:"machine"`
	Version        uint32         `json:"version"`
	InitialCtx     map[string]any `json:"initial_ctx"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type CreateInstanceResult struct {
	InstanceID string `json:"instance_id"`
	State      string `json:"state"`
	WALOffset  uint64 `json:"wal_offset"`
}

type GetInstanceParams struct {
	InstanceID string `json:"instance_id"`
}

type GetInstanceResult struct {
	Machine       string          `json:"machine"`
	Version       uint32          `json:"version"`
	State         string          `json:"state"`
	Ctx           json.RawMessage `json:"ctx"`
	LastEventID   string          `json:"last_event_id,omitempty"`
	LastWALOffset uint64          `json:"last_wal_offset"`
}

type DeleteInstanceParams struct {
	InstanceID     string `json:"instance_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ApplyEventParams struct {
	InstanceID     string         `json:"instance_id"`
	Event          string         `json:"event"`
	Payload        map[string]any `json:"payload"`
	ExpectedState  string         `json:"expected_state,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type ApplyEventResult struct {
	FromState string          `json:"from_state"`
	ToState   string          `json:"to_state"`
	Ctx       json.RawMessage `json:"ctx,omitempty"`
	WALOffset uint64          `json:"wal_offset"`
	Applied   bool            `json:"applied"`
	EventID   string          `json:"event_id,omitempty"`
}
