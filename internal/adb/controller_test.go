package adb

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"jordanella.com/autogui/internal/cv"
	"jordanella.com/autogui/internal/logging"
)

func init() {
	logging.SetOutput(io.Discard, logging.LogLevelError)
}

// fakeADB answers adb invocations from a table keyed by the joined arguments
type fakeADB struct {
	responses map[string][]byte
	errs      map[string]error
	calls     []string
}

func (f *fakeADB) run(ctx context.Context, adbPath string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.responses[key], nil
}

func newFake() *fakeADB {
	return &fakeADB{responses: map[string][]byte{}, errs: map[string]error{}}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x), uint8(y), 7, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestConnect(t *testing.T) {
	fake := newFake()
	fake.responses["connect 127.0.0.1:5555"] = []byte("connected to 127.0.0.1:5555\n")

	ctrl := NewController("adb", "127.0.0.1:5555").WithRunner(fake.run)
	if err := ctrl.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := ctrl.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if last := fake.calls[len(fake.calls)-1]; last != "disconnect 127.0.0.1:5555" {
		t.Errorf("Expected adb disconnect after a network connect, got %q", last)
	}

	fake.responses["connect 127.0.0.1:5556"] = []byte("failed to connect\n")
	if err := NewController("adb", "127.0.0.1:5556").WithRunner(fake.run).Connect(); err == nil {
		t.Error("Expected error for unexpected connect output")
	}

	calls := len(fake.calls)
	serial := NewController("adb", "emulator-5554").WithRunner(fake.run)
	if err := serial.Connect(); err != nil {
		t.Errorf("Serial device should connect without adb connect, got %v", err)
	}
	if err := serial.Disconnect(); err != nil {
		t.Errorf("Serial disconnect failed: %v", err)
	}
	if len(fake.calls) != calls {
		t.Errorf("Serial device should not invoke adb, got %v", fake.calls[calls:])
	}
}

func TestCaptureFrame(t *testing.T) {
	fake := newFake()
	fake.responses["-s dev exec-out screencap -p"] = pngBytes(t, 12, 9)

	ctrl := NewController("adb", "dev").WithRunner(fake.run)
	frame, err := ctrl.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	if frame.Bounds().Dx() != 12 || frame.Bounds().Dy() != 9 {
		t.Errorf("Expected 12x9 frame, got %v", frame.Bounds())
	}

	// Size learned from the capture, no wm size call needed
	if w, h := ctrl.GetDimensions(); w != 12 || h != 9 {
		t.Errorf("Expected 12x9 dimensions, got %dx%d", w, h)
	}

	area, err := ctrl.CaptureArea(cv.NewRegion(3, 2, 4, 5))
	if err != nil {
		t.Fatalf("CaptureArea failed: %v", err)
	}
	if got := area.RGBAAt(0, 0); got != (color.RGBA{3, 2, 7, 255}) {
		t.Errorf("Expected cropped pixel from (3,2), got %v", got)
	}

	if _, err := ctrl.CaptureArea(cv.NewRegion(50, 50, 4, 4)); !errors.Is(err, cv.ErrCapture) {
		t.Errorf("Expected ErrCapture for region outside screen, got %v", err)
	}
}

func TestCaptureFrameErrors(t *testing.T) {
	fake := newFake()
	fake.errs["-s dev exec-out screencap -p"] = errors.New("device offline")

	ctrl := NewController("adb", "dev").WithRunner(fake.run)
	if _, err := ctrl.CaptureFrame(); !errors.Is(err, cv.ErrCapture) {
		t.Errorf("Expected ErrCapture, got %v", err)
	}

	delete(fake.errs, "-s dev exec-out screencap -p")
	fake.responses["-s dev exec-out screencap -p"] = []byte("not a png")
	if _, err := ctrl.CaptureFrame(); !errors.Is(err, cv.ErrCapture) {
		t.Errorf("Expected ErrCapture for undecodable output, got %v", err)
	}
}

func TestPointer(t *testing.T) {
	fake := newFake()
	fake.responses["-s dev shell wm size"] = []byte("Physical size: 1080x1920\n")

	ctrl := NewController("adb", "dev").WithRunner(fake.run)
	w, h, err := ctrl.MainDisplaySize()
	if err != nil {
		t.Fatalf("MainDisplaySize failed: %v", err)
	}
	if w != 1080 || h != 1920 {
		t.Errorf("Expected 1080x1920, got %dx%d", w, h)
	}

	if err := ctrl.MoveTo(400, 800); err != nil {
		t.Fatalf("MoveTo failed: %v", err)
	}
	if last := fake.calls[len(fake.calls)-1]; last != "-s dev shell input mouse motionevent MOVE 400 800" {
		t.Errorf("Unexpected command %q", last)
	}

	// Cached after the first query
	ctrl.MainDisplaySize()
	count := 0
	for _, call := range fake.calls {
		if call == "-s dev shell wm size" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected wm size to be queried once, got %d", count)
	}
}

func TestParseWindowSize(t *testing.T) {
	tests := []struct {
		output  string
		w, h    int
		wantErr bool
	}{
		{"Physical size: 1080x1920", 1080, 1920, false},
		{"Physical size: 1080x1920\nOverride size: 720x1280", 720, 1280, false},
		{"Override size: 540x960\nPhysical size: 1080x1920", 540, 960, false},
		{"garbage", 0, 0, true},
	}

	for _, tt := range tests {
		w, h, err := parseWindowSize(tt.output)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: unexpected error state %v", tt.output, err)
			continue
		}
		if w != tt.w || h != tt.h {
			t.Errorf("%q: expected %dx%d, got %dx%d", tt.output, tt.w, tt.h, w, h)
		}
	}
}

func TestListDevices(t *testing.T) {
	fake := newFake()
	fake.responses["devices"] = []byte("List of devices attached\nemulator-5554\tdevice\n127.0.0.1:16416\toffline\nR58M\tdevice\n\n")

	devices, err := ListDevices("adb", fake.run)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 2 || devices[0] != "emulator-5554" || devices[1] != "R58M" {
		t.Errorf("Unexpected devices %v", devices)
	}
}
