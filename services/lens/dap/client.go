// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dap

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	godap "github.com/google/go-dap"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/objectlens/services/lens/debugger"
)

// Options configures a Client.
type Options struct {
	// RequestsPerSecond limits outgoing requests. Zero disables the limit.
	// Default: 200
	RequestsPerSecond float64

	// Burst is the limiter's burst size.
	// Default: 50
	Burst int

	// EventBuffer is the capacity of the events channel. Events are dropped
	// when it is full.
	// Default: 64
	EventBuffer int

	// Logger is used for diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		RequestsPerSecond: 200,
		Burst:             50,
		EventBuffer:       64,
		Logger:            slog.Default(),
	}
}

// Option configures Options.
type Option func(*Options)

// WithRateLimit limits outgoing requests.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Options) {
		o.RequestsPerSecond = perSecond
		o.Burst = burst
	}
}

// WithEventBuffer sets the events channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *Options) { o.EventBuffer = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Client is a DAP client over one connection.
//
// # Thread Safety
//
// Safe for concurrent use. Requests may be issued from many goroutines;
// writes are serialized and responses are routed by request_seq.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	limiter *rate.Limiter
	logger  *slog.Logger
	events  chan debugger.Event

	writeMu sync.Mutex

	mu      sync.Mutex
	seq     int
	pending map[int]chan godap.ResponseMessage
	closed  bool
	err     error

	done chan struct{}
}

// Dial connects to a debug adapter listening on addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing debug adapter %s: %w", addr, err)
	}
	return NewClient(conn, opts...), nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn net.Conn, opts ...Option) *Client {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.EventBuffer <= 0 {
		options.EventBuffer = 1
	}

	limit := rate.Inf
	if options.RequestsPerSecond > 0 {
		limit = rate.Limit(options.RequestsPerSecond)
	}
	burst := options.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		limiter: rate.NewLimiter(limit, burst),
		logger:  options.Logger.With(slog.String("component", "dap"), slog.String("remote", conn.RemoteAddr().String())),
		events:  make(chan debugger.Event, options.EventBuffer),
		pending: make(map[int]chan godap.ResponseMessage),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events returns the channel of translated session events. It is closed
// when the connection ends.
func (c *Client) Events() <-chan debugger.Event {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.pending = make(map[int]chan godap.ResponseMessage)
		c.mu.Unlock()
		close(c.done)
		close(c.events)
	}()

	for {
		msg, err := godap.ReadProtocolMessage(c.reader)
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = err
			}
			c.mu.Unlock()
			c.logger.Debug("dap read loop ended", slog.String("error", err.Error()))
			return
		}

		switch m := msg.(type) {
		case godap.ResponseMessage:
			c.deliver(m)
		case godap.EventMessage:
			c.dispatchEvent(m)
		default:
			c.logger.Debug("ignoring dap message", slog.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

func (c *Client) deliver(m godap.ResponseMessage) {
	seq := m.GetResponse().RequestSeq
	c.mu.Lock()
	ch, ok := c.pending[seq]
	delete(c.pending, seq)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("response without pending request", slog.Int("request_seq", seq))
		return
	}
	ch <- m
}

func (c *Client) dispatchEvent(m godap.EventMessage) {
	ev, ok := translateEvent(m)
	if !ok {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("dropping dap event, consumer too slow", slog.String("event", ev.Kind.String()))
	}
}

// translateEvent maps the lifecycle events the engine reacts to.
func translateEvent(m godap.EventMessage) (debugger.Event, bool) {
	switch e := m.(type) {
	case *godap.StoppedEvent:
		return debugger.Event{Kind: debugger.EventStopped, ThreadID: e.Body.ThreadId, Reason: e.Body.Reason}, true
	case *godap.ContinuedEvent:
		return debugger.Event{Kind: debugger.EventContinued, ThreadID: e.Body.ThreadId}, true
	case *godap.InitializedEvent:
		return debugger.Event{Kind: debugger.EventInitialized}, true
	case *godap.TerminatedEvent:
		return debugger.Event{Kind: debugger.EventTerminated}, true
	case *godap.ExitedEvent:
		return debugger.Event{Kind: debugger.EventExited, Reason: fmt.Sprintf("exit code %d", e.Body.ExitCode)}, true
	default:
		return debugger.Event{}, false
	}
}

// send writes req and waits for its response.
func (c *Client) send(ctx context.Context, req godap.RequestMessage) (godap.ResponseMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ch := make(chan godap.ResponseMessage, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.seq++
	r := req.GetRequest()
	r.Seq = c.seq
	r.Type = "request"
	c.pending[r.Seq] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := godap.WriteProtocolMessage(c.conn, req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(r.Seq)
		return nil, fmt.Errorf("writing %s request: %w", r.Command, err)
	}

	select {
	case resp := <-ch:
		if base := resp.GetResponse(); !base.Success {
			return nil, fmt.Errorf("%w: %s: %s", ErrRequestFailed, r.Command, failureMessage(resp))
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(r.Seq)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Client) forget(seq int) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

func failureMessage(resp godap.ResponseMessage) string {
	if e, ok := resp.(*godap.ErrorResponse); ok && e.Body.Error != nil && e.Body.Error.Format != "" {
		return e.Body.Error.Format
	}
	return resp.GetResponse().Message
}

func request(command string) godap.Request {
	return godap.Request{ProtocolMessage: godap.ProtocolMessage{Type: "request"}, Command: command}
}

// Initialize performs the initialize handshake.
func (c *Client) Initialize(ctx context.Context, clientID, adapterID string) (godap.Capabilities, error) {
	resp, err := c.send(ctx, &godap.InitializeRequest{
		Request: request("initialize"),
		Arguments: godap.InitializeRequestArguments{
			ClientID:             clientID,
			ClientName:           clientID,
			AdapterID:            adapterID,
			LinesStartAt1:        true,
			ColumnsStartAt1:      true,
			PathFormat:           "path",
			SupportsVariableType: true,
		},
	})
	if err != nil {
		return godap.Capabilities{}, err
	}
	init, ok := resp.(*godap.InitializeResponse)
	if !ok {
		return godap.Capabilities{}, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
	return init.Body, nil
}

// Launch sends a launch request with adapter-specific arguments.
func (c *Client) Launch(ctx context.Context, args json.RawMessage) error {
	_, err := c.send(ctx, &godap.LaunchRequest{Request: request("launch"), Arguments: args})
	return err
}

// Attach sends an attach request with adapter-specific arguments.
func (c *Client) Attach(ctx context.Context, args json.RawMessage) error {
	_, err := c.send(ctx, &godap.AttachRequest{Request: request("attach"), Arguments: args})
	return err
}

// ConfigurationDone ends the configuration phase.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.send(ctx, &godap.ConfigurationDoneRequest{Request: request("configurationDone")})
	return err
}

// Disconnect asks the adapter to end the session.
func (c *Client) Disconnect(ctx context.Context, terminate bool) error {
	_, err := c.send(ctx, &godap.DisconnectRequest{
		Request:   request("disconnect"),
		Arguments: &godap.DisconnectArguments{TerminateDebuggee: terminate},
	})
	return err
}

// StackTrace implements debugger.Session.
func (c *Client) StackTrace(ctx context.Context, threadID int) ([]debugger.StackFrame, error) {
	resp, err := c.send(ctx, &godap.StackTraceRequest{
		Request:   request("stackTrace"),
		Arguments: godap.StackTraceArguments{ThreadId: threadID},
	})
	if err != nil {
		return nil, err
	}
	st, ok := resp.(*godap.StackTraceResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
	frames := make([]debugger.StackFrame, 0, len(st.Body.StackFrames))
	for _, f := range st.Body.StackFrames {
		frame := debugger.StackFrame{ID: f.Id, Name: f.Name, Line: f.Line}
		if f.Source != nil {
			frame.Source = f.Source.Path
			if frame.Source == "" {
				frame.Source = f.Source.Name
			}
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Scopes implements debugger.Session.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]debugger.Scope, error) {
	resp, err := c.send(ctx, &godap.ScopesRequest{
		Request:   request("scopes"),
		Arguments: godap.ScopesArguments{FrameId: frameID},
	})
	if err != nil {
		return nil, err
	}
	sc, ok := resp.(*godap.ScopesResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
	scopes := make([]debugger.Scope, 0, len(sc.Body.Scopes))
	for _, s := range sc.Body.Scopes {
		scopes = append(scopes, debugger.Scope{Name: s.Name, VariablesReference: s.VariablesReference, Expensive: s.Expensive})
	}
	return scopes, nil
}

// Variables implements debugger.Session.
func (c *Client) Variables(ctx context.Context, ref int) ([]debugger.Variable, error) {
	resp, err := c.send(ctx, &godap.VariablesRequest{
		Request:   request("variables"),
		Arguments: godap.VariablesArguments{VariablesReference: ref},
	})
	if err != nil {
		return nil, err
	}
	vr, ok := resp.(*godap.VariablesResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
	vars := make([]debugger.Variable, 0, len(vr.Body.Variables))
	for _, v := range vr.Body.Variables {
		out := debugger.Variable{Name: v.Name, Value: v.Value, Type: v.Type, VariablesReference: v.VariablesReference}
		if h := v.PresentationHint; h != nil {
			out.PresentationHint = &debugger.PresentationHint{Kind: h.Kind, Attributes: h.Attributes, Lazy: h.Lazy}
		}
		vars = append(vars, out)
	}
	return vars, nil
}

var _ debugger.Session = (*Client)(nil)
