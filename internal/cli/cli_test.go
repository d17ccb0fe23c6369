package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"jordanella.com/autogui/internal/config"
	"jordanella.com/autogui/internal/cv"
	"jordanella.com/autogui/internal/database"
)

// fakeDevice serves a fixed frame and records pointer moves
type fakeDevice struct {
	frame *image.RGBA
	pos   image.Point
	moves []image.Point
}

func (d *fakeDevice) CaptureFrame() (*image.RGBA, error) {
	return d.frame, nil
}

func (d *fakeDevice) CaptureArea(region cv.Region) (*image.RGBA, error) {
	return cv.CropRegion(d.frame, region.Rect()), nil
}

func (d *fakeDevice) GetDimensions() (int, int) {
	return d.frame.Bounds().Dx(), d.frame.Bounds().Dy()
}

func (d *fakeDevice) MoveTo(x, y int32) error {
	d.pos = image.Pt(int(x), int(y))
	d.moves = append(d.moves, d.pos)
	return nil
}

func (d *fakeDevice) MainDisplaySize() (int32, int32, error) {
	return int32(d.frame.Bounds().Dx()), int32(d.frame.Bounds().Dy()), nil
}

func (d *fakeDevice) Location() (int, int) {
	return d.pos.X, d.pos.Y
}

func useDevice(t *testing.T, device Device) {
	t.Helper()
	previous := newDevice
	newDevice = func(*config.Config) (Device, error) { return device, nil }
	t.Cleanup(func() { newDevice = previous })
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

// runCLI executes the root command with args and returns its stdout
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, cmd := range rootCmd.Commands() {
		resetFlags(cmd)
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	err := Execute(context.Background())
	return out.String(), err
}

// noiseImage returns a deterministic image with channel values below 128
func noiseImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(rng.Intn(128)),
				G: uint8(rng.Intn(128)),
				B: uint8(rng.Intn(128)),
				A: 255,
			})
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) string {
	t.Helper()
	if err := cv.SaveImage(img, path); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func decodeJSON(t *testing.T, output string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("Failed to decode output %q: %v", output, err)
	}
}

func TestRootCommandHelp(t *testing.T) {
	output, err := runCLI(t, "--help")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"autogui", "locate", "move", "capture", "history", "templates"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected help to mention %q", want)
		}
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3")
	if rootCmd.Version != "1.2.3" {
		t.Errorf("Expected version 1.2.3, got %q", rootCmd.Version)
	}
	SetVersion("")
	if rootCmd.Version != "1.2.3" {
		t.Errorf("Empty version should be ignored, got %q", rootCmd.Version)
	}
}

func TestLocateImageInHaystack(t *testing.T) {
	dir := t.TempDir()
	haystack := noiseImage(64, 48, 1)
	needle := cv.CropRegion(haystack, image.Rect(30, 20, 38, 26))

	hayPath := writeImage(t, filepath.Join(dir, "screen.png"), haystack)
	needlePath := writeImage(t, filepath.Join(dir, "button.png"), needle)
	debugPath := filepath.Join(dir, "debug", "match.png")

	output, err := runCLI(t, "--no-db", "--json", "locate",
		"--image", needlePath, "--haystack", hayPath, "--debug-out", debugPath)
	if err != nil {
		t.Fatalf("locate failed: %v", err)
	}

	var result locateOutput
	decodeJSON(t, output, &result)

	if !result.Found {
		t.Fatalf("Expected needle to be found: %+v", result)
	}
	if result.Needle != "button" {
		t.Errorf("Expected needle name from file, got %q", result.Needle)
	}
	if result.X != 30 || result.Y != 20 {
		t.Errorf("Expected match at (30,20), got (%d,%d)", result.X, result.Y)
	}
	if result.CenterX != 34 || result.CenterY != 23 {
		t.Errorf("Expected centre (34,23), got (%d,%d)", result.CenterX, result.CenterY)
	}
	if result.Score != 0 || result.Similarity != 1 {
		t.Errorf("Expected exact match, got score %d similarity %v", result.Score, result.Similarity)
	}

	if _, err := os.Stat(debugPath); err != nil {
		t.Errorf("Expected debug image at %s: %v", debugPath, err)
	}
}

func TestLocateBelowConfidenceFails(t *testing.T) {
	dir := t.TempDir()
	haystack := noiseImage(40, 30, 2)
	needle := image.NewRGBA(image.Rect(0, 0, 6, 6))
	for i := range needle.Pix {
		needle.Pix[i] = 255
	}

	hayPath := writeImage(t, filepath.Join(dir, "screen.png"), haystack)
	needlePath := writeImage(t, filepath.Join(dir, "white.png"), needle)

	output, err := runCLI(t, "--no-db", "--json", "locate",
		"--image", needlePath, "--haystack", hayPath, "--stride", "2")
	if !errors.Is(err, cv.ErrNoMatchFound) {
		t.Fatalf("Expected ErrNoMatchFound, got %v", err)
	}

	var result locateOutput
	decodeJSON(t, output, &result)
	if result.Found {
		t.Error("Expected found=false")
	}
	if result.Similarity >= cv.DefaultConfidence {
		t.Errorf("Similarity %v should be below the default confidence", result.Similarity)
	}
}

func TestLocateRejectsAmbiguousNeedle(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"neither", []string{"--no-db", "locate"}},
		{"both", []string{"--no-db", "locate", "ok", "--image", "ok.png"}},
		{"move with haystack", []string{"--no-db", "locate", "--image", "a.png", "--haystack", "b.png", "--move"}},
		{"bad region", []string{"--no-db", "locate", "--image", "a.png", "--region", "1,2,3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, tt.args...); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestLocateTemplateMovesAndRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	templateDir := filepath.Join(dir, "templates")
	dbPath := filepath.Join(dir, "history.db")

	haystack := noiseImage(64, 48, 3)
	writeImage(t, filepath.Join(templateDir, "ok.png"), cv.CropRegion(haystack, image.Rect(30, 20, 38, 26)))
	yaml := "templates:\n  - name: ok_button\n    path: ok.png\n    confidence: 0.95\n"
	if err := os.WriteFile(filepath.Join(templateDir, "buttons.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write template file: %v", err)
	}

	device := &fakeDevice{frame: haystack}
	useDevice(t, device)

	if _, err := runCLI(t, "--templates", templateDir, "--db", dbPath,
		"locate", "ok_button", "--move", "--duration", "0"); err != nil {
		t.Fatalf("locate failed: %v", err)
	}

	if len(device.moves) != 1 || device.moves[0] != image.Pt(34, 23) {
		t.Fatalf("Expected a single move to (34,23), got %v", device.moves)
	}

	output, err := runCLI(t, "--db", dbPath, "--json", "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var locates []database.LocateRecord
	decodeJSON(t, output, &locates)
	if len(locates) != 1 || locates[0].Needle != "ok_button" || !locates[0].Found {
		t.Fatalf("Unexpected locate history: %+v", locates)
	}
	if locates[0].Confidence == nil || *locates[0].Confidence != 0.95 {
		t.Errorf("Expected template confidence 0.95 recorded, got %v", locates[0].Confidence)
	}

	output, err = runCLI(t, "--db", dbPath, "--json", "history", "--moves")
	if err != nil {
		t.Fatalf("history --moves failed: %v", err)
	}
	var moves []database.MoveRecord
	decodeJSON(t, output, &moves)
	if len(moves) != 1 || moves[0].ToX != 34 || moves[0].ToY != 23 {
		t.Errorf("Unexpected move history: %+v", moves)
	}
}

func TestTemplatesListsRegistry(t *testing.T) {
	dir := t.TempDir()
	yaml := "templates:\n" +
		"  - name: close\n    path: close.png\n    stride: 2\n" +
		"  - name: accept\n    path: accept.png\n    region: {x: 1, y: 2, width: 30, height: 40}\n"
	if err := os.WriteFile(filepath.Join(dir, "ui.yml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write template file: %v", err)
	}

	output, err := runCLI(t, "--templates", dir, "--json", "templates")
	if err != nil {
		t.Fatalf("templates failed: %v", err)
	}

	var entries []templateOutput
	decodeJSON(t, output, &entries)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 templates, got %d", len(entries))
	}
	if entries[0].Name != "accept" || entries[0].Region != "1,2,30,40" {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].Name != "close" || entries[1].Stride != 2 {
		t.Errorf("Unexpected second entry: %+v", entries[1])
	}
}

func TestMoveFromPointerLocation(t *testing.T) {
	device := &fakeDevice{frame: noiseImage(64, 48, 4), pos: image.Pt(10, 10)}
	useDevice(t, device)

	if _, err := runCLI(t, "--no-db", "move", "20", "10", "--duration", "20ms"); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	if len(device.moves) != 11 {
		t.Fatalf("Expected 11 moves for a 10 pixel path, got %d", len(device.moves))
	}
	if device.moves[0] != image.Pt(10, 10) || device.moves[10] != image.Pt(20, 10) {
		t.Errorf("Unexpected path ends: %v -> %v", device.moves[0], device.moves[10])
	}
}

func TestMoveWithExplicitOrigin(t *testing.T) {
	device := &fakeDevice{frame: noiseImage(64, 48, 5), pos: image.Pt(50, 40)}
	useDevice(t, device)

	if _, err := runCLI(t, "--no-db", "move", "3", "5", "--from", "0,5", "--duration", "4ms"); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	want := []image.Point{{0, 5}, {1, 5}, {2, 5}, {3, 5}}
	if len(device.moves) != len(want) {
		t.Fatalf("Expected %v, got %v", want, device.moves)
	}
	for i := range want {
		if device.moves[i] != want[i] {
			t.Errorf("Move %d: expected %v, got %v", i, want[i], device.moves[i])
		}
	}
}

func TestCaptureRegion(t *testing.T) {
	dir := t.TempDir()
	frame := noiseImage(32, 24, 6)
	useDevice(t, &fakeDevice{frame: frame})

	path := filepath.Join(dir, "shots", "region.png")
	if _, err := runCLI(t, "--no-db", "capture", path, "--region", "2,3,8,4"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	saved, err := cv.LoadImage(path)
	if err != nil {
		t.Fatalf("Failed to load capture: %v", err)
	}
	if saved.Bounds().Dx() != 8 || saved.Bounds().Dy() != 4 {
		t.Fatalf("Expected 8x4 capture, got %v", saved.Bounds())
	}
	if saved.RGBAAt(0, 0) != frame.RGBAAt(2, 3) {
		t.Errorf("Capture origin pixel mismatch: %v vs %v", saved.RGBAAt(0, 0), frame.RGBAAt(2, 3))
	}
}

func TestConfigFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Locate.Confidence = 0.9
	cfg.Capture.Backend = config.BackendADB
	cfg.Templates.Dir = filepath.Join(dir, "missing")
	path := filepath.Join(dir, "autogui.ini")
	if err := config.SaveToINI(cfg, path); err != nil {
		t.Fatalf("SaveToINI failed: %v", err)
	}

	t.Setenv("AUTOGUI_LOGGING_LEVEL", "debug")

	if _, err := runCLI(t, "--config", path, "--backend", "desktop", "--no-db", "templates"); err != nil {
		t.Fatalf("templates failed: %v", err)
	}

	if appConfig.Locate.Confidence != 0.9 {
		t.Errorf("Expected confidence from file, got %v", appConfig.Locate.Confidence)
	}
	if appConfig.Capture.Backend != config.BackendDesktop {
		t.Errorf("Expected --backend to win, got %q", appConfig.Capture.Backend)
	}
	if appConfig.Logging.Level != "debug" {
		t.Errorf("Expected level from environment, got %q", appConfig.Logging.Level)
	}
	if appConfig.Database.Enabled {
		t.Error("Expected --no-db to disable the database")
	}
}

func TestInvalidBackendRejected(t *testing.T) {
	if _, err := runCLI(t, "--backend", "vnc", "--no-db", "templates"); err == nil {
		t.Fatal("Expected invalid backend to fail validation")
	}
}

func TestParseRegionAndPoint(t *testing.T) {
	region, err := parseRegion("10, 20,30,40")
	if err != nil {
		t.Fatalf("parseRegion failed: %v", err)
	}
	if *region != cv.NewRegion(10, 20, 30, 40) {
		t.Errorf("Unexpected region %+v", *region)
	}

	for _, bad := range []string{"", "1,2,3", "1,2,x,4", "0,0,0,5"} {
		if _, err := parseRegion(bad); err == nil {
			t.Errorf("parseRegion(%q) should fail", bad)
		}
	}

	point, err := parsePoint("-5,7")
	if err != nil || point.X != -5 || point.Y != 7 {
		t.Errorf("parsePoint(-5,7) = %v, %v", point, err)
	}
	if _, err := parsePoint("5"); err == nil {
		t.Error("parsePoint(5) should fail")
	}
}

func TestCommandExamplesParse(t *testing.T) {
	for _, cmd := range rootCmd.Commands() {
		for _, line := range strings.Split(cmd.Example, "\n") {
			fields := strings.Fields(line)
			if len(fields) < 2 || fields[0] != "autogui" {
				continue
			}
			t.Run(strings.Join(fields[1:], " "), func(t *testing.T) {
				found, rest, err := rootCmd.Find(fields[1:])
				if err != nil {
					t.Fatalf("Find failed: %v", err)
				}
				resetFlags(found)
				t.Cleanup(func() { resetFlags(found) })

				if err := found.ParseFlags(rest); err != nil {
					t.Fatalf("ParseFlags failed: %v", err)
				}
				if err := found.ValidateArgs(found.Flags().Args()); err != nil {
					t.Errorf("Example arguments rejected: %v", err)
				}
				if f := found.Flags().Lookup("from"); f != nil && f.Changed {
					if _, err := parsePoint(f.Value.String()); err != nil {
						t.Error(err)
					}
				}
				if f := found.Flags().Lookup("region"); f != nil && f.Changed {
					if _, err := parseRegion(f.Value.String()); err != nil {
						t.Error(err)
					}
				}
			})
		}
	}
}

func TestExecuteClosesLogAfterFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Logging.File = filepath.Join(dir, "autogui.log")
	cfg.Database.Enabled = false
	cfg.Templates.Dir = dir
	path := filepath.Join(dir, "autogui.ini")
	if err := config.SaveToINI(cfg, path); err != nil {
		t.Fatalf("SaveToINI failed: %v", err)
	}

	_, err := runCLI(t, "--config", path, "locate", "missing")
	if err == nil || !strings.Contains(err.Error(), "unknown template 'missing'") {
		t.Fatalf("Expected unknown template error, got %v", err)
	}
	if logCloser != nil {
		t.Error("Expected the log file closed after a failed command")
	}
	if _, err := os.Stat(cfg.Logging.File); err != nil {
		t.Errorf("Expected log file to be created: %v", err)
	}
}

func TestLocateUnknownTemplateSkipsDevice(t *testing.T) {
	previous := newDevice
	newDevice = func(*config.Config) (Device, error) {
		t.Error("Device should not be opened for an unknown template")
		return nil, errors.New("unexpected")
	}
	t.Cleanup(func() { newDevice = previous })

	if _, err := runCLI(t, "--no-db", "--templates", t.TempDir(), "locate", "ok_button"); err == nil {
		t.Fatal("Expected an error for an unregistered template")
	}
}

func TestLocateImageWithWaitAndNoCache(t *testing.T) {
	dir := t.TempDir()
	haystack := noiseImage(48, 32, 7)
	hayPath := writeImage(t, filepath.Join(dir, "screen.png"), haystack)
	needlePath := writeImage(t, filepath.Join(dir, "icon.png"), cv.CropRegion(haystack, image.Rect(12, 9, 18, 14)))

	cfg := config.NewDefaultConfig()
	cfg.Database.Enabled = false
	cfg.Templates.Dir = filepath.Join(dir, "templates")
	cfg.Templates.Cache = false
	path := filepath.Join(dir, "autogui.ini")
	if err := config.SaveToINI(cfg, path); err != nil {
		t.Fatalf("SaveToINI failed: %v", err)
	}

	output, err := runCLI(t, "--config", path, "--json", "locate",
		"--image", needlePath, "--haystack", hayPath, "--wait", "1s")
	if err != nil {
		t.Fatalf("locate failed: %v", err)
	}

	var result locateOutput
	decodeJSON(t, output, &result)
	if !result.Found || result.Needle != "icon" || result.X != 12 || result.Y != 9 {
		t.Errorf("Unexpected result %+v", result)
	}
	if appConfig.Templates.Cache {
		t.Error("Expected cache disabled from the config file")
	}
}

func TestHistoryStatsPruneAndReset(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	haystack := noiseImage(40, 30, 8)
	hayPath := writeImage(t, filepath.Join(dir, "screen.png"), haystack)
	needlePath := writeImage(t, filepath.Join(dir, "tile.png"), cv.CropRegion(haystack, image.Rect(4, 4, 9, 9)))

	locate := func() {
		t.Helper()
		if _, err := runCLI(t, "--db", dbPath, "locate", "--image", needlePath, "--haystack", hayPath); err != nil {
			t.Fatalf("locate failed: %v", err)
		}
	}
	stats := func() statsOutput {
		t.Helper()
		output, err := runCLI(t, "--db", dbPath, "--json", "history", "--stats")
		if err != nil {
			t.Fatalf("history --stats failed: %v", err)
		}
		var out statsOutput
		decodeJSON(t, output, &out)
		return out
	}

	locate()
	locate()
	got := stats()
	if len(got.Needles) != 1 || got.Needles[0].Needle != "tile" || got.Needles[0].Attempts != 2 {
		t.Errorf("Unexpected needle stats %+v", got.Needles)
	}
	if got.Database.Version != database.LatestVersion() || got.Database.LatestVersion != database.LatestVersion() {
		t.Errorf("Unexpected schema version %+v", got.Database)
	}
	if got.Database.Rows["locate_history"] != 2 {
		t.Errorf("Expected 2 locate rows, got %v", got.Database.Rows)
	}

	output, err := runCLI(t, "--db", dbPath, "--json", "history", "--prune", "1ns")
	if err != nil {
		t.Fatalf("history --prune failed: %v", err)
	}
	var pruned map[string]int64
	decodeJSON(t, output, &pruned)
	if pruned["history"] != 2 {
		t.Errorf("Expected 2 pruned rows, got %v", pruned)
	}
	if rows := stats().Database.Rows; rows["locate_history"] != 0 {
		t.Errorf("Expected no locate rows after prune, got %v", rows)
	}

	locate()
	if _, err := runCLI(t, "--db", dbPath, "history", "--reset"); err != nil {
		t.Fatalf("history --reset failed: %v", err)
	}
	got = stats()
	if got.Database.Rows["locate_history"] != 0 || got.Database.Version != database.LatestVersion() {
		t.Errorf("Expected an empty current schema after reset, got %+v", got.Database)
	}
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	written := filepath.Join(dir, "out", "autogui.ini")

	output, err := runCLI(t, "--backend", "adb", "--device", "127.0.0.1:5555", "--no-db", "config")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !strings.Contains(output, "[ADB]") || !strings.Contains(output, "127.0.0.1:5555") {
		t.Errorf("Expected effective ini on stdout, got %q", output)
	}

	if _, err := runCLI(t, "--backend", "adb", "--device", "127.0.0.1:5555", "config", "--write", written); err != nil {
		t.Fatalf("config --write failed: %v", err)
	}
	loaded, err := config.LoadFromINI(written)
	if err != nil {
		t.Fatalf("LoadFromINI failed: %v", err)
	}
	if loaded.Capture.Backend != config.BackendADB || loaded.ADB.Device != "127.0.0.1:5555" {
		t.Errorf("Unexpected written config %+v", loaded)
	}
}
