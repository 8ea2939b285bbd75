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
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/objectlens/services/lens/debugger"
)

// fakeAdapter answers requests on the server side of a pipe.
type fakeAdapter struct {
	t       *testing.T
	conn    net.Conn
	writeMu sync.Mutex
	seq     int
	// silent lists variables references that never get an answer.
	silent map[int]bool
}

func newPair(t *testing.T, opts ...Option) (*Client, *fakeAdapter) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	a := &fakeAdapter{t: t, conn: serverConn, silent: map[int]bool{99: true}}
	go a.serve()
	c := NewClient(clientConn, opts...)
	t.Cleanup(func() {
		_ = c.Close()
		_ = serverConn.Close()
	})
	return c, a
}

func (a *fakeAdapter) write(msg godap.Message) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = godap.WriteProtocolMessage(a.conn, msg)
}

func (a *fakeAdapter) response(req *godap.Request, success bool) godap.Response {
	a.writeMu.Lock()
	a.seq++
	seq := a.seq
	a.writeMu.Unlock()
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Seq: seq, Type: "response"},
		RequestSeq:      req.Seq,
		Success:         success,
		Command:         req.Command,
	}
}

func (a *fakeAdapter) event(ev godap.EventMessage) {
	a.write(ev)
}

func (a *fakeAdapter) serve() {
	r := bufio.NewReader(a.conn)
	for {
		msg, err := godap.ReadProtocolMessage(r)
		if err != nil {
			return
		}
		go a.answer(msg)
	}
}

func (a *fakeAdapter) answer(msg godap.Message) {
	switch req := msg.(type) {
	case *godap.InitializeRequest:
		a.write(&godap.InitializeResponse{
			Response: a.response(&req.Request, true),
			Body:     godap.Capabilities{SupportsConfigurationDoneRequest: true},
		})
	case *godap.ConfigurationDoneRequest:
		a.write(&godap.ConfigurationDoneResponse{Response: a.response(&req.Request, true)})
	case *godap.LaunchRequest:
		resp := a.response(&req.Request, false)
		resp.Message = "program not found"
		a.write(&godap.ErrorResponse{Response: resp})
	case *godap.StackTraceRequest:
		a.write(&godap.StackTraceResponse{
			Response: a.response(&req.Request, true),
			Body: godap.StackTraceResponseBody{StackFrames: []godap.StackFrame{
				{Id: 1000, Name: "Main.main", Line: 12, Source: &godap.Source{Path: "/src/Main.java"}},
				{Id: 1001, Name: "Main.run", Line: 3, Source: &godap.Source{Name: "Main.java"}},
			}},
		})
	case *godap.ScopesRequest:
		a.write(&godap.ScopesResponse{
			Response: a.response(&req.Request, true),
			Body: godap.ScopesResponseBody{Scopes: []godap.Scope{
				{Name: "Locals", VariablesReference: req.Arguments.FrameId + 1},
				{Name: "Global", VariablesReference: 5, Expensive: true},
			}},
		})
	case *godap.VariablesRequest:
		ref := req.Arguments.VariablesReference
		if a.silent[ref] {
			return
		}
		a.write(&godap.VariablesResponse{
			Response: a.response(&req.Request, true),
			Body: godap.VariablesResponseBody{Variables: []godap.Variable{
				{Name: fmt.Sprintf("v%d", ref), Value: "1", Type: "int"},
				{Name: "lazy", Value: "", Type: "Supplier", VariablesReference: ref + 1,
					PresentationHint: &godap.VariablePresentationHint{Kind: "property", Lazy: true}},
			}},
		})
	}
}

func TestClient_Session(t *testing.T) {
	ctx := context.Background()
	c, _ := newPair(t)

	frames, err := c.StackTrace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []debugger.StackFrame{
		{ID: 1000, Name: "Main.main", Source: "/src/Main.java", Line: 12},
		{ID: 1001, Name: "Main.run", Source: "Main.java", Line: 3},
	}, frames)

	scopes, err := c.Scopes(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.True(t, scopes[0].Inspectable())
	assert.Equal(t, 1001, scopes[0].VariablesReference)
	assert.False(t, scopes[1].Inspectable())

	vars, err := c.Variables(ctx, 7)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, debugger.Variable{Name: "v7", Value: "1", Type: "int"}, vars[0])
	assert.True(t, vars[1].IsLazy())
}

func TestClient_Handshake(t *testing.T) {
	ctx := context.Background()
	c, _ := newPair(t)

	caps, err := c.Initialize(ctx, "objectlens", "java")
	require.NoError(t, err)
	assert.True(t, caps.SupportsConfigurationDoneRequest)
	require.NoError(t, c.ConfigurationDone(ctx))

	err = c.Launch(ctx, []byte(`{"mainClass":"Main"}`))
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "program not found")
}

func TestClient_ConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	c, _ := newPair(t)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(ref int) {
			defer wg.Done()
			vars, err := c.Variables(ctx, ref*10)
			if err != nil {
				errs <- err
				return
			}
			if vars[0].Name != fmt.Sprintf("v%d", ref*10) {
				errs <- fmt.Errorf("ref %d got %s", ref*10, vars[0].Name)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClient_Events(t *testing.T) {
	c, a := newPair(t)

	a.event(&godap.InitializedEvent{Event: godap.Event{ProtocolMessage: godap.ProtocolMessage{Seq: 1, Type: "event"}, Event: "initialized"}})
	a.event(&godap.StoppedEvent{
		Event: godap.Event{ProtocolMessage: godap.ProtocolMessage{Seq: 2, Type: "event"}, Event: "stopped"},
		Body:  godap.StoppedEventBody{Reason: "breakpoint", ThreadId: 7},
	})
	a.event(&godap.OutputEvent{
		Event: godap.Event{ProtocolMessage: godap.ProtocolMessage{Seq: 3, Type: "event"}, Event: "output"},
		Body:  godap.OutputEventBody{Output: "hello\n"},
	})
	a.event(&godap.TerminatedEvent{Event: godap.Event{ProtocolMessage: godap.ProtocolMessage{Seq: 4, Type: "event"}, Event: "terminated"}})

	want := []debugger.Event{
		{Kind: debugger.EventInitialized},
		{Kind: debugger.EventStopped, ThreadID: 7, Reason: "breakpoint"},
		{Kind: debugger.EventTerminated},
	}
	for _, w := range want {
		select {
		case got := <-c.Events():
			assert.Equal(t, w, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w.Kind)
		}
	}
}

func TestClient_Cancellation(t *testing.T) {
	c, _ := newPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Variables(ctx, 99)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	vars, err := c.Variables(context.Background(), 3)
	require.NoError(t, err, "client stays usable after a cancelled request")
	assert.Len(t, vars, 2)
}

func TestClient_Close(t *testing.T) {
	c, _ := newPair(t)

	pending := make(chan error, 1)
	go func() {
		_, err := c.Variables(context.Background(), 99)
		pending <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-pending:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not released by Close")
	}

	_, err := c.StackTrace(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
	_, open := <-c.Events()
	assert.False(t, open)
	assert.NoError(t, c.Close(), "closing twice is a no-op")
}
