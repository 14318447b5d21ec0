package rstmclient

import (
	"context"
	"encoding/json"
)

// Session narrows a Client to success or failure per call, which is all the
// load runner observes. Results are decoded and discarded so that a malformed
// response still counts as a failure.
type Session struct {
	*Client
}

// DialSession dials a client and wraps it in a Session.
func DialSession(ctx context.Context, cfg Config) (*Session, error) {
	c, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Session{Client: c}, nil
}

func (s *Session) PutMachine(ctx context.Context, machine string, version uint32, definition json.RawMessage) error {
	_, err := s.Client.PutMachine(ctx, machine, version, definition)
	return err
}

func (s *Session) CreateInstance(ctx context.Context, machine string, version uint32, instanceID string, initialCtx map[string]any) error {
	_, err := s.Client.CreateInstance(ctx, machine, version, instanceID, initialCtx)
	return err
}

func (s *Session) ApplyEvent(ctx context.Context, instanceID, event string, payload map[string]any) error {
	_, err := s.Client.ApplyEvent(ctx, instanceID, event, payload)
	return err
}

func (s *Session) GetInstance(ctx context.Context, instanceID string) error {
	_, err := s.Client.GetInstance(ctx, instanceID)
	return err
}
