package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/your-org/faceattend/internal/config"
)

// Source grabs frames from a local capture device by piping MJPEG out of
// FFmpeg. It implements the engine's FrameSource: Grab is non-blocking and
// returns nil when no new frame has arrived, which the engine treats as an
// empty iteration.
type Source struct {
	cfg config.CameraConfig

	mu      sync.Mutex
	frame   image.Image
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	started bool
}

func NewSource(cfg config.CameraConfig) *Source {
	return &Source{cfg: cfg}
}

// Start spawns FFmpeg against the configured device and begins decoding
// frames into the latest-frame slot.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("camera already started")
	}

	ctx, cancel := context.WithCancel(context.Background())

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}
	args = append(args, inputArgs(s.cfg.Device)...)
	args = append(args,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", s.cfg.FPS, s.cfg.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cancel = cancel
	s.cmd = cmd
	s.started = true

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	go s.readFrames(ctx, stdout)

	slog.Info("camera started", "device", s.cfg.Device, "fps", s.cfg.FPS, "width", s.cfg.Width)
	return nil
}

// Grab returns the most recent frame, or nil when none has arrived since
// the last call.
func (s *Source) Grab() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frame
	s.frame = nil
	return f
}

// Stop terminates FFmpeg and releases the device.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.frame = nil
	s.cmd = nil
	s.started = false
	slog.Info("camera stopped", "device", s.cfg.Device)
}

// readFrames consumes the concatenated-JPEG stream and keeps only the
// newest decoded frame; a slow consumer drops stale frames instead of
// blocking the pipe.
func (s *Source) readFrames(ctx context.Context, r io.Reader) {
	reader := bufio.NewReaderSize(r, 512*1024)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := findJPEGStart(reader); err != nil {
			if err != io.EOF {
				slog.Warn("camera stream error", "error", err)
			}
			return
		}

		frameData, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err != io.EOF {
				slog.Warn("camera frame error", "error", err)
			}
			return
		}

		img, err := jpeg.Decode(bytes.NewReader(frameData))
		if err != nil {
			slog.Warn("decode camera frame", "error", err)
			continue
		}

		s.mu.Lock()
		s.frame = img
		s.mu.Unlock()
	}
}

// inputArgs picks the FFmpeg input flags for the local capture stack.
func inputArgs(device string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"-f", "avfoundation", "-i", device}
	case "windows":
		return []string{"-f", "dshow", "-i", "video=" + device}
	default:
		return []string{"-f", "v4l2", "-i", device}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		// Safety: max 10MB per frame
		if len(data) > 10*1024*1024 {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
