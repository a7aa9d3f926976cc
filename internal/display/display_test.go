package display

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"

	backendfake "github.com/grubvoice/station-go/pkg/backend/fake"
	"github.com/grubvoice/station-go/pkg/orderfeed"
)

// displayServer is a websocket endpoint collecting pushed frames.
type displayServer struct {
	srv    *httptest.Server
	frames chan Frame
}

func newDisplayServer(t *testing.T) *displayServer {
	t.Helper()

	ds := &displayServer{frames: make(chan Frame, 16)}
	upgrader := websocket.Upgrader{}

	ds.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			ds.frames <- frame
		}
	}))
	t.Cleanup(ds.srv.Close)
	return ds
}

func (ds *displayServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ds.srv.URL, "http")
}

func (ds *displayServer) waitFrame(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-ds.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestBridge_PushesOrderOnToken(t *testing.T) {
	is := is.New(t)

	ds := newDisplayServer(t)
	fb := backendfake.New()
	feed := orderfeed.New()

	grant, err := fb.CreateSession(context.Background(), 7)
	is.NoErr(err)

	bridge := New(Config{
		DisplayURL: ds.wsURL(),
		StationID:  "station-1",
		Client:     fb,
		Feed:       feed,
		SessionID:  func() string { return grant.SessionID },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	// Let the bridge subscribe and connect before broadcasting.
	deadline := time.After(2 * time.Second)
	for !bridge.IsConnected() {
		select {
		case <-deadline:
			t.Fatal("bridge never connected")
		case <-time.After(5 * time.Millisecond):
		}
	}

	feed.Broadcast()

	frame := ds.waitFrame(t)
	is.Equal(frame.Type, FrameTypeOrder)
	is.Equal(frame.Token, uint64(1))
	is.True(frame.Order != nil)
}

func TestBridge_ClearsDisplayBetweenCustomers(t *testing.T) {
	is := is.New(t)

	ds := newDisplayServer(t)
	feed := orderfeed.New()

	bridge := New(Config{
		DisplayURL: ds.wsURL(),
		StationID:  "station-1",
		Client:     backendfake.New(),
		Feed:       feed,
		SessionID:  func() string { return "" },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	deadline := time.After(2 * time.Second)
	for !bridge.IsConnected() {
		select {
		case <-deadline:
			t.Fatal("bridge never connected")
		case <-time.After(5 * time.Millisecond):
		}
	}

	feed.Broadcast()

	frame := ds.waitFrame(t)
	is.Equal(frame.Type, FrameTypeClear)
	is.True(frame.Order == nil)
}

func TestBridge_RunStopsOnContextCancel(t *testing.T) {
	ds := newDisplayServer(t)
	feed := orderfeed.New()

	bridge := New(Config{
		DisplayURL: ds.wsURL(),
		StationID:  "station-1",
		Client:     backendfake.New(),
		Feed:       feed,
		SessionID:  func() string { return "" },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
