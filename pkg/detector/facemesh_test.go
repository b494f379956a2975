package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/proctor"
)

// meshServer is a fake landmark sidecar: it answers every binary frame
// with the configured response.
func meshServer(t *testing.T, respond func(frame []byte) meshResult) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for {
			messageType, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.BinaryMessage {
				t.Errorf("Expected binary frame, got type %d", messageType)
			}
			payload, _ := json.Marshal(respond(frame))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestFaceMeshDetect(t *testing.T) {
	landmarks := []proctor.Point{{X: 0.5, Y: 0.5}, {X: 0.6, Y: 0.4}}
	server := meshServer(t, func(frame []byte) meshResult {
		if string(frame) != "jpeg-bytes" {
			t.Errorf("Frame corrupted in transit: %q", frame)
		}
		return meshResult{Landmarks: landmarks}
	})
	defer server.Close()

	d := NewFaceMesh(Config{URL: wsURL(server)}, nil)
	defer d.Close()

	got, err := d.Detect(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(got) != 2 || got[0].X != 0.5 || got[1].Y != 0.4 {
		t.Errorf("Unexpected landmarks: %+v", got)
	}
}

func TestFaceMeshNoFace(t *testing.T) {
	server := meshServer(t, func([]byte) meshResult {
		return meshResult{}
	})
	defer server.Close()

	d := NewFaceMesh(Config{URL: wsURL(server)}, nil)
	defer d.Close()

	got, err := d.Detect(context.Background(), []byte{1})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil landmarks for no face, got %+v", got)
	}
}

func TestFaceMeshSidecarError(t *testing.T) {
	server := meshServer(t, func([]byte) meshResult {
		return meshResult{Error: "model not loaded"}
	})
	defer server.Close()

	d := NewFaceMesh(Config{URL: wsURL(server)}, nil)
	defer d.Close()

	if _, err := d.Detect(context.Background(), []byte{1}); err == nil {
		t.Fatal("Expected an error from the sidecar")
	}
}

func TestFaceMeshReconnectsAfterFailure(t *testing.T) {
	server := meshServer(t, func([]byte) meshResult {
		return meshResult{Landmarks: []proctor.Point{{X: 0.1, Y: 0.2}}}
	})
	d := NewFaceMesh(Config{URL: wsURL(server)}, nil)
	defer d.Close()

	if _, err := d.Detect(context.Background(), []byte{1}); err != nil {
		t.Fatalf("First detect failed: %v", err)
	}

	// Kill the connection behind the client's back.
	d.mu.Lock()
	d.conn.Close()
	d.mu.Unlock()

	// The broken connection surfaces one error, then the client re-dials.
	if _, err := d.Detect(context.Background(), []byte{2}); err == nil {
		t.Log("Broken connection went unnoticed, acceptable if buffered")
	}
	got, err := d.Detect(context.Background(), []byte{3})
	if err != nil {
		t.Fatalf("Detect after reconnect failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Unexpected landmarks after reconnect: %+v", got)
	}
	server.Close()
}

func TestFaceMeshDialFailure(t *testing.T) {
	d := NewFaceMesh(Config{URL: "ws://127.0.0.1:1/mesh"}, nil)
	defer d.Close()

	if _, err := d.Detect(context.Background(), []byte{1}); err == nil {
		t.Fatal("Expected a dial error")
	}
}
