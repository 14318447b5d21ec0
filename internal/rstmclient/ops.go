package rstmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rstmdb/rstmload/internal/protocol"
	"github.com/rstmdb/rstmload/internal/tracing"
)

// Ping checks liveness of the session.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.OpPing, nil)
	return err
}

// PutMachine registers a machine definition version.
func (c *Client) PutMachine(ctx context.Context, machine string, version uint32, definition json.RawMessage) (protocol.PutMachineResult, error) {
	var out protocol.PutMachineResult
	raw, err := c.Request(ctx, protocol.OpPutMachine, protocol.PutMachineParams{
		Machine:    machine,
		Version:    version,
		Definition: definition,
	})
	if err != nil {
		return out, err
	}
	return out, decodeResult(protocol.OpPutMachine, raw, &out)
}

// CreateInstance creates a machine instance with the given id and initial context.
func (c *Client) CreateInstance(ctx context.Context, machine string, version uint32, instanceID string, initialCtx map[string]any) (protocol.CreateInstanceResult, error) {
	var out protocol.CreateInstanceResult
	if initialCtx == nil {
		initialCtx = map[string]any{}
	}
	raw, err := c.Request(ctx, protocol.OpCreateInstance, protocol.CreateInstanceParams{
		InstanceID: instanceID,
		Machine:    machine,
		Version:    version,
		InitialCtx: initialCtx,
	})
	if err != nil {
		return out, err
	}
	return out, decodeResult(protocol.OpCreateInstance, raw, &out)
}

// ApplyEvent applies an event to an instance.
func (c *Client) ApplyEvent(ctx context.Context, instanceID, event string, payload map[string]any) (protocol.ApplyEventResult, error) {
	var out protocol.ApplyEventResult
	if payload == nil {
		payload = map[string]any{}
	}
	if c.cfg.Propagate {
		tracing.InjectPayload(ctx, payload)
	}
	raw, err := c.Request(ctx, protocol.OpApplyEvent, protocol.ApplyEventParams{
		InstanceID: instanceID,
		Event:      event,
		Payload:    payload,
	})
	if err != nil {
		return out, err
	}
	return out, decodeResult(protocol.OpApplyEvent, raw, &out)
}

// GetInstance fetches an instance's current state and context.
func (c *Client) GetInstance(ctx context.Context, instanceID string) (protocol.GetInstanceResult, error) {
	var out protocol.GetInstanceResult
	raw, err := c.Request(ctx, protocol.OpGetInstance, protocol.GetInstanceParams{InstanceID: instanceID})
	if err != nil {
		return out, err
	}
	return out, decodeResult(protocol.OpGetInstance, raw, &out)
}

// DeleteInstance removes an instance.
func (c *Client) DeleteInstance(ctx context.Context, instanceID string) error {
	_, err := c.Request(ctx, protocol.OpDeleteInstance, protocol.DeleteInstanceParams{InstanceID: instanceID})
	return err
}

func decodeResult(op protocol.Operation, raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", op, err)
	}
	return nil
}
