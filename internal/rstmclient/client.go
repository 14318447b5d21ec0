// Package rstmclient is a client for rstmdb servers speaking the RCP framed
// protocol over TCP or TLS.
//
// A Client owns one connection. Requests may be issued from multiple
// goroutines; responses are correlated by request id on a single reader
// goroutine started after the HELLO/AUTH handshake.
package rstmclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rstmdb/rstmload/internal/auth"
	"github.com/rstmdb/rstmload/internal/clientmetrics"
	"github.com/rstmdb/rstmload/internal/protocol"
	"github.com/rstmdb/rstmload/internal/tracing"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultClientName     = "rstmload"
)

// Error is a client-side failure with a stable code, reported alongside
// server error codes in failure breakdowns.
type Error struct {
	code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// ErrorCode returns the stable code of the failure.
func (e *Error) ErrorCode() string { return e.code }

var (
	ErrNotConnected     = &Error{code: "NOT_CONNECTED", msg: "not connected"}
	ErrAlreadyConnected = &Error{code: "ALREADY_CONNECTED", msg: "client already connected"}
	ErrConnectionClosed = &Error{code: "CONNECTION_CLOSED", msg: "connection closed"}
	ErrTimeout          = &Error{code: "TIMEOUT", msg: "request timeout"}
)

// Config holds configuration for the client.
type Config struct {
	Addr           string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	ClientName     string
	TLS            TLSConfig
	Auth           auth.Provider // nil skips AUTH
	Tracer         trace.Tracer  // nil disables request spans
	Propagate      bool          // embed trace context in APPLY_EVENT payloads
	Logger         *zap.Logger
}

func (c *Config) normalize() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ClientName == "" {
		c.ClientName = defaultClientName
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ServerError is an error response returned by the server.
type ServerError struct {
	Op        protocol.Operation
	Code      protocol.ErrorCode
	Message   string
	Retryable bool
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s - %s", e.Code, e.Message)
}

// ErrorCode exposes the stable server code for error breakdowns.
func (e *ServerError) ErrorCode() string { return string(e.Code) }

// Client represents a single RCP connection.
type Client struct {
	cfg     Config
	log     *zap.Logger
	metrics *clientmetrics.ClientMetrics

	writeMu sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader

	mu        sync.Mutex
	pending   map[string]chan protocol.Response
	done      chan struct{}
	readErr   error
	connected atomic.Bool
	nextID    atomic.Uint64

	server protocol.HelloResult
}

// New creates an unconnected client.
func New(cfg Config) *Client {
	cfg.normalize()
	return &Client{
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("addr", cfg.Addr)),
		metrics: clientmetrics.New(),
	}
}

// Dial creates a client and connects it.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c := New(cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect establishes the connection and performs the HELLO handshake,
// authenticating when a token provider is configured.
func (c *Client) Connect(ctx context.Context) error {
	c.writeMu.Lock()
	if c.conn != nil {
		c.writeMu.Unlock()
		return ErrAlreadyConnected
	}
	c.writeMu.Unlock()

	c.log.Debug("connecting")
	dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	if c.cfg.TLS.Enabled {
		tlsConn, err := upgradeTLS(ctx, conn, c.cfg.TLS, c.cfg.Addr, c.log)
		if err != nil {
			conn.Close()
			return err
		}
		conn = tlsConn
	}

	c.writeMu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.writeMu.Unlock()

	if err := c.handshake(ctx); err != nil {
		conn.Close()
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		return err
	}

	c.mu.Lock()
	c.pending = make(map[string]chan protocol.Response)
	c.done = make(chan struct{})
	c.readErr = nil
	c.mu.Unlock()

	c.metrics.MarkConnected()
	c.connected.Store(true)
	go c.readLoop()
	c.log.Debug("connected", zap.String("server", c.server.ServerName), zap.String("server_version", c.server.ServerVersion))
	return nil
}

// handshake sends HELLO and optional AUTH, reading each response directly
// since the read loop is not running yet.
func (c *Client) handshake(ctx context.Context) error {
	hello := protocol.HelloParams{
		ProtocolVersion: protocol.Version,
		ClientName:      c.cfg.ClientName,
		WireModes:       []string{"binary_json"},
		Features:        []string{"idempotency", "batch"},
	}
	result, err := c.roundTrip(protocol.OpHello, hello)
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &c.server); err != nil {
			return fmt.Errorf("hello: decode result: %w", err)
		}
	}

	if c.cfg.Auth == nil {
		return nil
	}
	token, err := c.cfg.Auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if _, err := c.roundTrip(protocol.OpAuth, protocol.AuthParams{Method: auth.MethodBearer, Token: token}); err != nil {
		var serr *ServerError
		if errors.As(err, &serr) {
			serr.Retryable = false
		}
		return fmt.Errorf("auth: %w", err)
	}
	c.log.Debug("authenticated")
	return nil
}

// roundTrip writes a request and synchronously reads its response.
func (c *Client) roundTrip(op protocol.Operation, params any) (json.RawMessage, error) {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	req, err := protocol.NewRequest(id, op, params)
	if err != nil {
		return nil, err
	}
	if err := c.writeRequest(req); err != nil {
		return nil, err
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.RequestTimeout)); err != nil {
		return nil, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		frame, err := protocol.ReadFrame(c.reader)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, err
		}
		c.metrics.FrameReceived(protocol.HeaderSize + len(frame.HeaderExt) + len(frame.Payload))
		if protocol.MessageType(frame.Payload) != protocol.TypeResponse {
			continue
		}
		resp, err := protocol.DecodeResponse(frame.Payload)
		if err != nil {
			return nil, err
		}
		return resultOf(op, resp)
	}
}

func (c *Client) writeRequest(req protocol.Request) error {
	encoded, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if _, err := c.conn.Write(encoded); err != nil {
		c.metrics.IncrementErrors()
		return fmt.Errorf("write %s: %w", req.Op, err)
	}
	c.metrics.FrameSent(len(encoded))
	return nil
}

// Request sends a request and waits for the correlated response.
func (c *Client) Request(ctx context.Context, op protocol.Operation, params any) (result json.RawMessage, err error) {
	if c.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = tracing.StartOperationSpan(ctx, c.cfg.Tracer, string(op))
		defer func() { tracing.EndSpan(span, err, attribute.String("rcp.op", string(op))) }()
	}

	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)
	req, err := protocol.NewRequest(id, op, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan protocol.Response, 1)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = ch
	done := c.done
	c.mu.Unlock()

	if err := c.writeRequest(req); err != nil {
		c.forget(id)
		return nil, err
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resultOf(op, resp)
	case <-done:
		c.forget(id)
		return nil, c.closedErr()
	case <-timer.C:
		c.forget(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func resultOf(op protocol.Operation, resp protocol.Response) (json.RawMessage, error) {
	if resp.OK() {
		return resp.Result, nil
	}
	serr := &ServerError{Op: op, Code: protocol.CodeInternalError, Message: "error response without details"}
	if resp.Error != nil {
		serr.Code = resp.Error.Code
		serr.Message = resp.Error.Message
		serr.Retryable = resp.Error.Retryable
	}
	return nil, serr
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	if c.pending != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, c.readErr)
	}
	return ErrConnectionClosed
}

// readLoop dispatches responses to waiting requests until the connection fails.
func (c *Client) readLoop() {
	for {
		frame, err := protocol.ReadFrame(c.reader)
		if err != nil {
			c.fail(err)
			return
		}
		c.metrics.FrameReceived(protocol.HeaderSize + len(frame.HeaderExt) + len(frame.Payload))

		switch kind := protocol.MessageType(frame.Payload); kind {
		case protocol.TypeResponse:
			resp, err := protocol.DecodeResponse(frame.Payload)
			if err != nil {
				c.metrics.IncrementErrors()
				c.log.Warn("dropping undecodable response", zap.Error(err))
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.ID]
			if ok {
				delete(c.pending, resp.ID)
			}
			c.mu.Unlock()
			if !ok {
				c.log.Debug("no pending request for response", zap.String("id", resp.ID))
				continue
			}
			ch <- resp
		case protocol.TypeEvent:
			c.log.Debug("ignoring stream event")
		default:
			c.log.Warn("unknown message type", zap.String("type", kind))
		}
	}
}

func (c *Client) fail(err error) {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return
	}
	c.readErr = err
	c.pending = nil
	close(c.done)
	c.log.Debug("read loop stopped", zap.Error(err))
}

// Close sends a best-effort BYE, closes the socket and fails pending requests.
func (c *Client) Close() error {
	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()
	if conn == nil {
		return nil
	}

	if c.connected.Load() {
		if req, err := protocol.NewRequest(strconv.FormatUint(c.nextID.Add(1), 10), protocol.OpBye, nil); err == nil {
			_ = c.writeRequest(req)
		}
	}
	c.connected.Store(false)

	err := conn.Close()
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	c.writeMu.Lock()
	c.conn = nil
	c.writeMu.Unlock()
	c.metrics.Reset()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Connected reports whether the handshake completed and the connection is live.
func (c *Client) Connected() bool { return c.connected.Load() }

// Server returns the server identity reported during HELLO.
func (c *Client) Server() protocol.HelloResult { return c.server }

// Metrics returns the connection's wire counters.
func (c *Client) Metrics() clientmetrics.Snapshot { return c.metrics.Snapshot() }
