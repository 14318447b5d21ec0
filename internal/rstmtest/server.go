// Package rstmtest provides an in-memory RCP server for tests. It implements
// enough of an rstmdb server to exercise the client and the load runner end to
// end: HELLO, AUTH, PING, BYE, PUT_MACHINE and the instance lifecycle.
package rstmtest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rstmdb/rstmload/internal/protocol"
)

// Options tune server behaviour.
type Options struct {
	// Token, when set, must be presented via AUTH before any data operation.
	Token string
	// Latency is added before every response.
	Latency time.Duration
	// Fail lets a test inject an error response for a request. Returning
	// a non-empty code replaces normal handling.
	Fail func(op protocol.Operation, params json.RawMessage) protocol.ErrorCode
}

type transition struct {
	From  string `json:"from"`
	Event string `json:"event"`
	To    string `json:"to"`
}

type machineDef struct {
	States      []string     `json:"states"`
	Initial     string       `json:"initial"`
	Transitions []transition `json:"transitions"`
}

type instance struct {
	machine string
	version uint32
	state   string
	ctx     map[string]any
	offset  uint64
}

// Server is a fake rstmdb server listening on a loopback port.
type Server struct {
	opts     Options
	listener net.Listener
	wg       sync.WaitGroup

	mu        sync.Mutex
	machines  map[string]machineDef
	instances map[string]*instance
	calls     map[protocol.Operation]int
	conns     map[net.Conn]struct{}
	walOffset uint64
	closed    bool
}

// NewServer starts a server on 127.0.0.1 with an ephemeral port.
func NewServer(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		opts:      opts,
		listener:  ln,
		machines:  make(map[string]machineDef),
		instances: make(map[string]*instance),
		calls:     make(map[protocol.Operation]int),
		conns:     make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Calls returns how many requests of op the server handled.
func (s *Server) Calls(op protocol.Operation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Instances returns the number of live instances.
func (s *Server) Instances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// HasMachine reports whether machine@version was registered.
func (s *Server) HasMachine(machine string, version uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.machines[machineKey(machine, version)]
	return ok
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	authed := s.opts.Token == ""
	for {
		frame, err := protocol.ReadFrame(r)
		if err != nil {
			return
		}
		req, err := protocol.DecodeRequest(frame.Payload)
		if err != nil {
			return
		}
		if req.Op == protocol.OpBye {
			return
		}
		if s.opts.Latency > 0 {
			time.Sleep(s.opts.Latency)
		}

		resp := s.handle(req, &authed)
		out, err := protocol.EncodeResponse(resp)
		if err != nil {
			return
		}
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func (s *Server) handle(req protocol.Request, authed *bool) protocol.Response {
	s.mu.Lock()
	s.calls[req.Op]++
	s.mu.Unlock()

	if s.opts.Fail != nil {
		if code := s.opts.Fail(req.Op, req.Params); code != "" {
			return errorResponse(req.ID, code, "injected failure")
		}
	}

	switch req.Op {
	case protocol.OpHello:
		return okResponse(req.ID, protocol.HelloResult{
			ProtocolVersion: protocol.Version,
			WireMode:        "binary_json",
			ServerName:      "rstmtest",
			ServerVersion:   "0.0.0",
			Features:        []string{"idempotency", "batch"},
		})
	case protocol.OpAuth:
		var p protocol.AuthParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Token != s.opts.Token {
			return errorResponse(req.ID, protocol.CodeAuthFailed, "invalid token")
		}
		*authed = true
		return okResponse(req.ID, map[string]any{"authenticated": true})
	case protocol.OpPing:
		return okResponse(req.ID, map[string]any{"pong": true})
	}

	if !*authed {
		return errorResponse(req.ID, protocol.CodeUnauthorized, "authentication required")
	}

	result, code, err := s.dispatch(req)
	if err != nil {
		return errorResponse(req.ID, code, err.Error())
	}
	return okResponse(req.ID, result)
}

func (s *Server) dispatch(req protocol.Request) (any, protocol.ErrorCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Op {
	case protocol.OpPutMachine:
		var p protocol.PutMachineParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, protocol.CodeBadRequest, err
		}
		var def machineDef
		if err := json.Unmarshal(p.Definition, &def); err != nil {
			return nil, protocol.CodeBadRequest, fmt.Errorf("invalid definition: %w", err)
		}
		if def.Initial == "" {
			return nil, protocol.CodeBadRequest, errors.New("definition has no initial state")
		}
		key := machineKey(p.Machine, p.Version)
		_, existed := s.machines[key]
		s.machines[key] = def
		return protocol.PutMachineResult{Machine: p.Machine, Version: p.Version, StoredChecksum: "test", Created: !existed}, "", nil

	case protocol.OpCreateInstance:
		var p protocol.CreateInstanceParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, protocol.CodeBadRequest, err
		}
		def, ok := s.machines[machineKey(p.Machine, p.Version)]
		if !ok {
			return nil, protocol.CodeMachineNotFound, fmt.Errorf("machine %s@%d not found", p.Machine, p.Version)
		}
		if _, exists := s.instances[p.InstanceID]; exists {
			return nil, protocol.CodeInstanceExists, fmt.Errorf("instance %s exists", p.InstanceID)
		}
		s.walOffset++
		s.instances[p.InstanceID] = &instance{
			machine: p.Machine,
			version: p.Version,
			state:   def.Initial,
			ctx:     p.InitialCtx,
			offset:  s.walOffset,
		}
		return protocol.CreateInstanceResult{InstanceID: p.InstanceID, State: def.Initial, WALOffset: s.walOffset}, "", nil

	case protocol.OpApplyEvent:
		var p protocol.ApplyEventParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, protocol.CodeBadRequest, err
		}
		inst, ok := s.instances[p.InstanceID]
		if !ok {
			return nil, protocol.CodeInstanceNotFound, fmt.Errorf("instance %s not found", p.InstanceID)
		}
		def := s.machines[machineKey(inst.machine, inst.version)]
		for _, t := range def.Transitions {
			if t.From == inst.state && t.Event == p.Event {
				from := inst.state
				inst.state = t.To
				s.walOffset++
				inst.offset = s.walOffset
				return protocol.ApplyEventResult{FromState: from, ToState: t.To, WALOffset: s.walOffset, Applied: true}, "", nil
			}
		}
		return nil, protocol.CodeInvalidTransition, fmt.Errorf("no transition for %s from %s", p.Event, inst.state)

	case protocol.OpGetInstance:
		var p protocol.GetInstanceParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, protocol.CodeBadRequest, err
		}
		inst, ok := s.instances[p.InstanceID]
		if !ok {
			return nil, protocol.CodeInstanceNotFound, fmt.Errorf("instance %s not found", p.InstanceID)
		}
		ctx, _ := json.Marshal(inst.ctx)
		return protocol.GetInstanceResult{
			Machine:       inst.machine,
			Version:       inst.version,
			State:         inst.state,
			Ctx:           ctx,
			LastWALOffset: inst.offset,
		}, "", nil

	case protocol.OpDeleteInstance:
		var p protocol.DeleteInstanceParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, protocol.CodeBadRequest, err
		}
		if _, ok := s.instances[p.InstanceID]; !ok {
			return nil, protocol.CodeInstanceNotFound, fmt.Errorf("instance %s not found", p.InstanceID)
		}
		delete(s.instances, p.InstanceID)
		return map[string]any{"instance_id": p.InstanceID, "deleted": true}, "", nil
	}

	return nil, protocol.CodeBadRequest, fmt.Errorf("unsupported operation %s", req.Op)
}

func machineKey(machine string, version uint32) string {
	return fmt.Sprintf("%s@%d", machine, version)
}

func okResponse(id string, result any) protocol.Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, protocol.CodeInternalError, err.Error())
	}
	return protocol.Response{Type: protocol.TypeResponse, ID: id, Status: protocol.StatusOK, Result: raw}
}

func errorResponse(id string, code protocol.ErrorCode, msg string) protocol.Response {
	return protocol.Response{
		Type:   protocol.TypeResponse,
		ID:     id,
		Status: protocol.StatusError,
		Error: &protocol.ResponseError{
			Code:      code,
			Message:   msg,
			Retryable: code.Retryable(),
		},
	}
}
