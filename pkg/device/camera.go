package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/proctor"
)

// CameraConfig configures the ffmpeg-backed camera.
type CameraConfig struct {
	// Device is the capture device. Defaults to /dev/video0 on Linux
	// and "0" on macOS.
	Device string

	// FrameRate is the capture rate in frames per second.
	FrameRate int

	// Width and Height set the capture resolution.
	Width  int
	Height int

	// FFmpegPath overrides the ffmpeg binary location.
	FFmpegPath string

	// FrameBuffer is the capacity of the frame channel. Frames are
	// dropped when the consumer falls behind.
	FrameBuffer int
}

// DefaultCameraConfig returns the camera settings used for proctoring.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		FrameRate:   2,
		Width:       640,
		Height:      480,
		FFmpegPath:  "ffmpeg",
		FrameBuffer: 8,
	}
}

// Camera captures webcam frames by running ffmpeg as a subprocess and
// splitting its MJPEG stdout stream into individual JPEG frames.
type Camera struct {
	cfg CameraConfig
}

// NewCamera returns a camera backed by an ffmpeg subprocess.
func NewCamera(cfg CameraConfig) *Camera {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 2
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 640, 480
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 8
	}
	return &Camera{cfg: cfg}
}

// Acquire starts the ffmpeg capture process and begins splitting frames.
func (c *Camera) Acquire(ctx context.Context) (proctor.FrameSource, error) {
	if _, err := exec.LookPath(c.cfg.FFmpegPath); err != nil {
		return nil, errors.New("ffmpeg is required for camera capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := cameraFFmpegArgs(runtime.GOOS, c.cfg)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg camera capture: %w", err)
	}

	src := &cameraSource{
		cmd:    cmd,
		frames: make(chan []byte, c.cfg.FrameBuffer),
	}
	go src.split(stdout)
	return src, nil
}

func cameraFFmpegArgs(goos string, cfg CameraConfig) ([]string, error) {
	size := fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	rate := fmt.Sprintf("%d", cfg.FrameRate)
	switch goos {
	case "darwin":
		device := cfg.Device
		if device == "" {
			device = "0"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation",
			"-framerate", rate,
			"-video_size", size,
			"-i", device + ":none",
			"-f", "mjpeg", "-q:v", "5", "-",
		}, nil
	case "linux":
		device := cfg.Device
		if device == "" {
			device = "/dev/video0"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "v4l2",
			"-framerate", rate,
			"-video_size", size,
			"-i", device,
			"-f", "mjpeg", "-q:v", "5", "-",
		}, nil
	default:
		return nil, fmt.Errorf("camera capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

type cameraSource struct {
	cmd    *exec.Cmd
	frames chan []byte

	releaseOnce sync.Once
}

func (s *cameraSource) Frames() <-chan []byte {
	return s.frames
}

func (s *cameraSource) Release() {
	s.releaseOnce.Do(func() {
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
		}
	})
}

// split reads the MJPEG byte stream and emits one channel entry per
// complete JPEG frame. It closes the frame channel when the stream ends.
func (s *cameraSource) split(stdout io.Reader) {
	defer close(s.frames)

	reader := bufio.NewReaderSize(stdout, 64*1024)
	buf := make([]byte, 0, 256*1024)
	tmp := make([]byte, 32*1024)

	for {
		n, err := reader.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				frame, rest, ok := nextJPEGFrame(buf)
				if !ok {
					break
				}
				out := append([]byte(nil), frame...)
				buf = append(buf[:0], rest...)
				select {
				case s.frames <- out:
				default:
					// Consumer fell behind; drop the frame.
				}
			}
		}
		if err != nil {
			return
		}
	}
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// nextJPEGFrame extracts the first complete JPEG frame from buf, bounded
// by the SOI and EOI markers. rest holds the bytes after the frame.
func nextJPEGFrame(buf []byte) (frame, rest []byte, ok bool) {
	start := bytes.Index(buf, jpegSOI)
	if start < 0 {
		return nil, buf, false
	}
	end := bytes.Index(buf[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		return nil, buf, false
	}
	end += start + len(jpegSOI) + len(jpegEOI)
	return buf[start:end], buf[end:], true
}
