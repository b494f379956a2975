// Package detector talks to the face-landmark sidecar over a WebSocket:
// binary JPEG frames go out, landmark sets come back as JSON. The sidecar
// runs the actual face-mesh model; this client only moves frames.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/proctor"
)

// Config holds the sidecar connection settings.
type Config struct {
	// URL is the sidecar WebSocket endpoint, e.g. ws://localhost:8765/mesh.
	URL string `json:"url"`

	// ReadTimeout bounds one detection round trip. A sidecar slower than
	// this reads as "no sample", which the gaze monitor treats as away.
	ReadTimeout time.Duration `json:"read_timeout"`

	// WriteTimeout bounds one frame write.
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DefaultConfig returns sidecar settings for a local deployment.
func DefaultConfig() Config {
	return Config{
		URL:          "ws://localhost:8765/mesh",
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 1 * time.Second,
	}
}

// FaceMesh is a WebSocket client for the landmark sidecar. It implements
// proctor.Detector. Calls are serialized; the gaze monitor's busy flag
// already prevents overlapping detections, the mutex only guards against
// misuse.
type FaceMesh struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewFaceMesh creates a sidecar client. The connection is dialed lazily on
// the first Detect and re-dialed after any failure.
func NewFaceMesh(cfg Config, logger *slog.Logger) *FaceMesh {
	if cfg.URL == "" {
		cfg = DefaultConfig()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FaceMesh{cfg: cfg, logger: logger}
}

// meshResult is the sidecar's response for one frame.
type meshResult struct {
	Landmarks []proctor.Point `json:"landmarks"`
	Error     string          `json:"error,omitempty"`
}

// Detect submits one frame and returns the detected landmark set, or nil
// when the sidecar finds no face.
func (d *FaceMesh) Detect(ctx context.Context, frame []byte) ([]proctor.Point, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	if err := conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout)); err != nil {
		d.dropConn()
		return nil, fmt.Errorf("detector write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		d.dropConn()
		return nil, fmt.Errorf("sending frame: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout)); err != nil {
		d.dropConn()
		return nil, fmt.Errorf("detector read deadline: %w", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		d.dropConn()
		return nil, fmt.Errorf("reading landmarks: %w", err)
	}

	var result meshResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding landmarks: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("detector: %s", result.Error)
	}
	return result.Landmarks, nil
}

// Close releases the sidecar connection.
func (d *FaceMesh) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropConn()
	return nil
}

// ensureConn dials the sidecar if no connection is live. Caller holds mu.
func (d *FaceMesh) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing detector sidecar: %w", err)
	}
	d.logger.Debug("detector sidecar connected", "url", d.cfg.URL)
	d.conn = conn
	return conn, nil
}

// dropConn closes and forgets a failed connection. Caller holds mu.
func (d *FaceMesh) dropConn() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}
