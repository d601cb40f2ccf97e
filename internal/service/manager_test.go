package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"detectionui/internal/config"
	"detectionui/internal/dto"
	"detectionui/internal/logger"
	"detectionui/internal/service/camera"

	"gocv.io/x/gocv"
)

// ========================================
// Fakes
// ========================================

type fakeDetector struct {
	detections []dto.Detection
	err        error
	calls      atomic.Int32
}

func (d *fakeDetector) Detect(frame gocv.Mat, threshold float32) ([]dto.Detection, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	var out []dto.Detection
	for _, det := range d.detections {
		if det.Confidence >= threshold {
			out = append(out, det)
		}
	}
	return out, nil
}

func (d *fakeDetector) Classes() []string { return []string{"person"} }
func (d *fakeDetector) Close() error      { return nil }

type recordingDisplay struct {
	mu       sync.Mutex
	frames   int
	rendered []dto.RenderInstruction
}

func (r *recordingDisplay) Render(instruction dto.RenderInstruction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if instruction.Kind == dto.RenderFrame {
		r.frames++
		return
	}
	r.rendered = append(r.rendered, instruction)
}

func (r *recordingDisplay) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *recordingDisplay) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, in := range r.rendered {
		if in.Kind == dto.RenderStatus {
			out = append(out, in.Message)
		}
	}
	return out
}

func (r *recordingDisplay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rendered) + r.frames
}

type fakeCamera struct {
	frames int
	reads  atomic.Int32
	closed atomic.Bool
}

func (c *fakeCamera) Read(m *gocv.Mat) bool {
	if int(c.reads.Add(1)) > c.frames {
		return false
	}
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.CopyTo(m)
	return true
}

func (c *fakeCamera) Close() error {
	c.closed.Store(true)
	return nil
}

func opener(cam *fakeCamera) camera.Opener {
	return func() (camera.Source, error) { return cam, nil }
}

func newTestManager(t *testing.T, source string, det *fakeDetector, open camera.Opener) (*Manager, *recordingDisplay) {
	t.Helper()

	disp := &recordingDisplay{}
	cfg := &config.Config{DefaultSource: source, DefaultThreshold: 0.25}
	m, err := NewManager(det, disp, open, cfg, logger.NewDiscard())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(m.Stop)
	return m, disp
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		t.Fatalf("IMEncode failed: %v", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var person = dto.Detection{X1: 10, Y1: 20, X2: 80, Y2: 100, Confidence: 0.8, ClassID: 0, ClassName: "person"}

// ========================================
// Construction Tests
// ========================================

func TestNewManager_InvalidDefaults(t *testing.T) {
	det := &fakeDetector{}

	if _, err := NewManager(det, &recordingDisplay{}, nil, &config.Config{DefaultSource: "video", DefaultThreshold: 0.25}, logger.NewDiscard()); !errors.Is(err, dto.ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource, got %v", err)
	}
	if _, err := NewManager(det, &recordingDisplay{}, nil, &config.Config{DefaultSource: "webcam", DefaultThreshold: 2}, logger.NewDiscard()); !errors.Is(err, dto.ErrInvalidThreshold) {
		t.Errorf("Expected ErrInvalidThreshold, got %v", err)
	}
}

// ========================================
// Upload Tests
// ========================================

func TestHandleUpload_NoFileIsIdle(t *testing.T) {
	det := &fakeDetector{detections: []dto.Detection{person}}
	m, disp := newTestManager(t, "upload", det, nil)

	instruction, err := m.HandleUpload("", nil)
	if err != nil || instruction != nil {
		t.Errorf("Expected nil instruction and error, got %v, %v", instruction, err)
	}
	if det.calls.Load() != 0 {
		t.Error("Detector should not run without a file")
	}
	if disp.count() != 0 {
		t.Error("Nothing should be rendered without a file")
	}
}

func TestHandleUpload_PersonDetected(t *testing.T) {
	det := &fakeDetector{detections: []dto.Detection{person}}
	m, disp := newTestManager(t, "upload", det, nil)

	instruction, err := m.HandleUpload("people.png", pngBytes(t))
	if err != nil {
		t.Fatalf("HandleUpload failed: %v", err)
	}

	if instruction.Kind != dto.RenderImage {
		t.Errorf("Expected image instruction, got %s", instruction.Kind)
	}
	if instruction.Caption != UploadCaption {
		t.Errorf("Expected caption %q, got %q", UploadCaption, instruction.Caption)
	}
	if len(instruction.Detections) != 1 || instruction.Detections[0].ClassName != "person" {
		t.Errorf("Expected one person detection, got %+v", instruction.Detections)
	}
	if instruction.Image == "" || len(instruction.JPEG) == 0 {
		t.Error("Expected an encoded image")
	}
	if disp.count() != 0 {
		t.Errorf("Upload results should not be broadcast to viewers, got %d renders", disp.count())
	}
}

func TestHandleUpload_ThresholdFilters(t *testing.T) {
	det := &fakeDetector{detections: []dto.Detection{person}}
	m, _ := newTestManager(t, "upload", det, nil)

	if _, err := m.HandleThresholdChange(0.9); err != nil {
		t.Fatalf("HandleThresholdChange failed: %v", err)
	}

	instruction, err := m.HandleUpload("people.jpg", pngBytes(t))
	if err != nil {
		t.Fatalf("HandleUpload failed: %v", err)
	}
	if len(instruction.Detections) != 0 {
		t.Errorf("Expected no detections above 0.9, got %d", len(instruction.Detections))
	}
}

func TestHandleUpload_WrongSource(t *testing.T) {
	det := &fakeDetector{}
	m, _ := newTestManager(t, "webcam", det, nil)

	if _, err := m.HandleUpload("a.png", []byte{1}); !errors.Is(err, ErrWrongSource) {
		t.Errorf("Expected ErrWrongSource, got %v", err)
	}
}

func TestHandleUpload_DetectorError(t *testing.T) {
	det := &fakeDetector{err: errors.New("model exploded")}
	m, disp := newTestManager(t, "upload", det, nil)

	if _, err := m.HandleUpload("a.png", pngBytes(t)); err == nil {
		t.Error("Expected detector error to propagate")
	}
	if disp.count() != 0 {
		t.Error("Nothing should be rendered when detection fails")
	}
}

// ========================================
// Control Tests
// ========================================

func TestHandleThresholdChange(t *testing.T) {
	m, disp := newTestManager(t, "upload", &fakeDetector{}, nil)

	instruction, err := m.HandleThresholdChange(0.5)
	if err != nil {
		t.Fatalf("HandleThresholdChange failed: %v", err)
	}
	if instruction.Kind != dto.RenderSettings || instruction.Settings.Threshold != 0.5 {
		t.Errorf("Unexpected instruction: %+v", instruction)
	}
	if m.Settings().Threshold != 0.5 {
		t.Errorf("Expected threshold 0.5, got %v", m.Settings().Threshold)
	}
	if disp.count() != 1 {
		t.Errorf("Expected one render, got %d", disp.count())
	}

	if _, err := m.HandleThresholdChange(1.5); !errors.Is(err, dto.ErrInvalidThreshold) {
		t.Errorf("Expected ErrInvalidThreshold, got %v", err)
	}
	if m.Settings().Threshold != 0.5 {
		t.Error("Rejected threshold should not change the settings")
	}
}

func TestHandleSourceChange_Invalid(t *testing.T) {
	m, _ := newTestManager(t, "upload", &fakeDetector{}, nil)

	if _, err := m.HandleSourceChange("video"); !errors.Is(err, dto.ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource, got %v", err)
	}
	if m.Settings().Source != dto.SourceUpload {
		t.Error("Rejected source should not change the settings")
	}
}

// ========================================
// Webcam Loop Tests
// ========================================

func TestWebcam_GrabFailure(t *testing.T) {
	cam := &fakeCamera{frames: 0}
	det := &fakeDetector{}
	m, disp := newTestManager(t, "webcam", det, opener(cam))

	m.Start(context.Background())

	waitFor(t, "grab failure message", func() bool {
		s := disp.statuses()
		return len(s) == 2 && s[1] == GrabFailedMessage
	})

	if s := disp.statuses(); s[0] != StartingMessage {
		t.Errorf("Expected %q first, got %q", StartingMessage, s[0])
	}
	if det.calls.Load() != 0 || disp.frameCount() != 0 {
		t.Error("No frame should be processed when the first read fails")
	}
	if !cam.closed.Load() {
		t.Error("Camera should be released")
	}
}

func TestWebcam_StreamsFrames(t *testing.T) {
	cam := &fakeCamera{frames: 3}
	det := &fakeDetector{detections: []dto.Detection{person}}
	m, disp := newTestManager(t, "webcam", det, opener(cam))

	m.Start(context.Background())

	waitFor(t, "end of stream", func() bool {
		s := disp.statuses()
		return len(s) == 2
	})

	if disp.frameCount() != 3 {
		t.Errorf("Expected 3 frames rendered, got %d", disp.frameCount())
	}
	if det.calls.Load() != 3 {
		t.Errorf("Expected 3 detector calls, got %d", det.calls.Load())
	}
}

func TestWebcam_SourceChangeStopsLoop(t *testing.T) {
	cam := &fakeCamera{frames: 1 << 30}
	m, disp := newTestManager(t, "webcam", &fakeDetector{}, opener(cam))

	m.Start(context.Background())
	waitFor(t, "first frame", func() bool { return disp.frameCount() > 0 })

	if _, err := m.HandleSourceChange("upload"); err != nil {
		t.Fatalf("HandleSourceChange failed: %v", err)
	}

	if !cam.closed.Load() {
		t.Error("Camera should be released once the source changes")
	}
	if m.StreamState() != camera.StateStopped {
		t.Errorf("Expected STOPPED, got %s", m.StreamState())
	}

	frames := disp.frameCount()
	time.Sleep(50 * time.Millisecond)
	if disp.frameCount() != frames {
		t.Error("Frames kept arriving after switching to upload")
	}
}

func TestWebcam_ContextCancelReleasesCamera(t *testing.T) {
	cam := &fakeCamera{frames: 1 << 30}
	m, disp := newTestManager(t, "webcam", &fakeDetector{}, opener(cam))
	ctx, cancel := context.WithCancel(context.Background())

	m.Start(ctx)
	waitFor(t, "first frame", func() bool { return disp.frameCount() > 0 })

	cancel()
	waitFor(t, "camera release", cam.closed.Load)

	for _, s := range disp.statuses() {
		if s == GrabFailedMessage {
			t.Error("Cancellation should not be reported as a grab failure")
		}
	}
}

func TestWebcam_ReselectRestartsLoop(t *testing.T) {
	var opened atomic.Int32
	open := func() (camera.Source, error) {
		opened.Add(1)
		return &fakeCamera{frames: 1 << 30}, nil
	}
	m, disp := newTestManager(t, "upload", &fakeDetector{}, open)

	m.Start(context.Background())
	if opened.Load() != 0 {
		t.Fatal("Camera should stay closed in upload mode")
	}

	if _, err := m.HandleSourceChange("webcam"); err != nil {
		t.Fatalf("HandleSourceChange failed: %v", err)
	}
	waitFor(t, "first frame", func() bool { return disp.frameCount() > 0 })

	if _, err := m.HandleSourceChange("Webcam"); err != nil {
		t.Fatalf("HandleSourceChange failed: %v", err)
	}
	waitFor(t, "second camera open", func() bool { return opened.Load() == 2 })
}
