package camera

import (
	"bufio"
	"bytes"
	"image"
	"image/jpeg"
	"io"
	"testing"

	"github.com/your-org/faceattend/internal/config"
)

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestJPEGMarkerScanning(t *testing.T) {
	frame := encodeJPEG(t)

	// Garbage before the frame, then two concatenated frames: the scanner
	// must recover each one intact.
	stream := append([]byte{0x00, 0x13, 0x37, 0xFF, 0x00}, frame...)
	stream = append(stream, frame...)

	r := bufio.NewReader(bytes.NewReader(stream))
	for i := 0; i < 2; i++ {
		if err := findJPEGStart(r); err != nil {
			t.Fatalf("frame %d: findJPEGStart: %v", i, err)
		}
		data, err := readUntilJPEGEnd(r)
		if err != nil {
			t.Fatalf("frame %d: readUntilJPEGEnd: %v", i, err)
		}
		if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
			t.Fatalf("frame %d: recovered bytes do not decode: %v", i, err)
		}
	}

	if err := findJPEGStart(r); err != io.EOF {
		t.Fatalf("after last frame: err = %v, want io.EOF", err)
	}
}

func TestFindJPEGStartEOF(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0x01, 0x02, 0xFF}))
	if err := findJPEGStart(r); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestReadUntilJPEGEndTruncated(t *testing.T) {
	// SOI seen, stream ends before EOI.
	r := bufio.NewReader(bytes.NewReader([]byte{0x11, 0x22, 0x33}))
	if _, err := readUntilJPEGEnd(r); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestGrabConsumesLatestFrame(t *testing.T) {
	s := NewSource(config.CameraConfig{Device: "/dev/video0", FPS: 15, Width: 640})

	if s.Grab() != nil {
		t.Fatal("Grab before any frame must return nil")
	}

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	s.mu.Lock()
	s.frame = img
	s.mu.Unlock()

	if got := s.Grab(); got != img {
		t.Fatal("Grab must return the stored frame")
	}
	if s.Grab() != nil {
		t.Fatal("a frame is delivered once; the slot must be empty after Grab")
	}
}
