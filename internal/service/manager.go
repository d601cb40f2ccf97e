package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"detectionui/internal/config"
	"detectionui/internal/dto"
	"detectionui/internal/logger"
	"detectionui/internal/service/ai"
	"detectionui/internal/service/camera"
	"detectionui/internal/service/display"
	"detectionui/internal/service/vision"

	"gocv.io/x/gocv"
)

const (
	StartingMessage   = "Starting Webcam..."
	GrabFailedMessage = "Failed to grab frame"
	UploadCaption     = "Processed Image"
)

var ErrWrongSource = errors.New("uploads are only accepted when the source is Upload Image")

// Manager reacts to the UI controls (source, threshold, upload) and turns each into a render instruction.
// It owns the webcam loop: at most one runs at a time and it is stopped before the source changes.
type Manager struct {
	detector   ai.Detector
	display    display.Display
	openCamera camera.Opener
	logger     *logger.Logger

	settingsMu sync.RWMutex
	settings   dto.Settings

	loopMu  sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stream  *camera.Stream
}

func NewManager(detector ai.Detector, disp display.Display, openCamera camera.Opener, cfg *config.Config, logger *logger.Logger) (*Manager, error) {
	source, err := dto.ParseSource(cfg.DefaultSource)
	if err != nil {
		return nil, err
	}
	if err := dto.ValidateThreshold(cfg.DefaultThreshold); err != nil {
		return nil, err
	}

	return &Manager{
		detector:   detector,
		display:    disp,
		openCamera: openCamera,
		logger:     logger,
		settings:   dto.Settings{Source: source, Threshold: cfg.DefaultThreshold},
		baseCtx:    context.Background(),
	}, nil
}

// Start binds the webcam loop lifetime to ctx and starts streaming if the source is webcam.
func (m *Manager) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	m.baseCtx = ctx
	if m.Settings().Source == dto.SourceWebcam {
		m.startWebcamLocked()
	}
	m.logger.Info("🎬 Manager started - source: %s, threshold: %.2f", m.Settings().Source.Label(), m.Settings().Threshold)
}

// Stop halts the webcam loop and waits until the camera is released.
func (m *Manager) Stop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	m.stopWebcamLocked()
	m.logger.Info("🛑 Manager stopped")
}

// Settings returns a copy of the current controls.
func (m *Manager) Settings() dto.Settings {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.settings
}

// SettingsInstruction describes the current controls for a viewer.
func (m *Manager) SettingsInstruction() dto.RenderInstruction {
	s := m.Settings()
	return dto.RenderInstruction{Kind: dto.RenderSettings, Settings: &s}
}

// StreamState reports the webcam loop state, StateStopped when none was started.
func (m *Manager) StreamState() camera.State {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.stream == nil {
		return camera.StateStopped
	}
	return m.stream.State()
}

// HandleSourceChange switches the input source. Selecting webcam (re)starts the camera loop.
func (m *Manager) HandleSourceChange(value string) (dto.RenderInstruction, error) {
	source, err := dto.ParseSource(value)
	if err != nil {
		return dto.RenderInstruction{}, err
	}

	m.loopMu.Lock()
	m.stopWebcamLocked()

	m.settingsMu.Lock()
	m.settings.Source = source
	m.settingsMu.Unlock()

	instruction := m.SettingsInstruction()
	m.display.Render(instruction)

	if source == dto.SourceWebcam {
		m.startWebcamLocked()
	}
	m.loopMu.Unlock()

	m.logger.Info("Input source changed to %s", source.Label())
	return instruction, nil
}

// HandleThresholdChange updates the confidence threshold; the webcam loop picks it up on the next frame.
func (m *Manager) HandleThresholdChange(threshold float64) (dto.RenderInstruction, error) {
	if err := dto.ValidateThreshold(threshold); err != nil {
		return dto.RenderInstruction{}, err
	}

	m.settingsMu.Lock()
	m.settings.Threshold = threshold
	m.settingsMu.Unlock()

	instruction := m.SettingsInstruction()
	m.display.Render(instruction)
	return instruction, nil
}

// HandleUpload runs detection once on an uploaded image and returns the result to the uploader only.
// With no file it does nothing and returns a nil instruction.
func (m *Manager) HandleUpload(filename string, data []byte) (*dto.RenderInstruction, error) {
	if len(data) == 0 {
		return nil, nil
	}

	settings := m.Settings()
	if settings.Source != dto.SourceUpload {
		return nil, ErrWrongSource
	}

	frame, err := vision.DecodeUpload(filename, data)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	instruction, err := m.ProcessFrame(&frame, float32(settings.Threshold))
	if err != nil {
		return nil, err
	}
	instruction.Kind = dto.RenderImage
	instruction.Caption = UploadCaption

	m.logger.Info("Processed upload %s: %d detection(s)", filename, len(instruction.Detections))
	return &instruction, nil
}

// ProcessFrame detects, annotates in place, converts to RGB and encodes one frame.
func (m *Manager) ProcessFrame(frame *gocv.Mat, threshold float32) (dto.RenderInstruction, error) {
	detections, err := m.detector.Detect(*frame, threshold)
	if err != nil {
		return dto.RenderInstruction{}, fmt.Errorf("detection failed: %w", err)
	}

	if err := vision.Annotate(frame, detections); err != nil {
		return dto.RenderInstruction{}, err
	}

	rgb, err := vision.ToDisplay(*frame)
	if err != nil {
		return dto.RenderInstruction{}, err
	}
	defer rgb.Close()

	jpeg, err := vision.EncodeRGB(rgb)
	if err != nil {
		return dto.RenderInstruction{}, err
	}

	return dto.RenderInstruction{
		Image:      base64.StdEncoding.EncodeToString(jpeg),
		Detections: detections,
		JPEG:       jpeg,
	}, nil
}

func (m *Manager) handleWebcamFrame(frame *gocv.Mat) error {
	instruction, err := m.ProcessFrame(frame, float32(m.Settings().Threshold))
	if err != nil {
		return err
	}
	instruction.Kind = dto.RenderFrame
	m.display.Render(instruction)
	return nil
}

func (m *Manager) startWebcamLocked() {
	ctx, cancel := context.WithCancel(m.baseCtx)
	done := make(chan struct{})
	stream := camera.NewStream(m.openCamera, m.logger)

	m.cancel = cancel
	m.done = done
	m.stream = stream

	m.display.Render(dto.RenderInstruction{Kind: dto.RenderStatus, Message: StartingMessage})

	go func() {
		defer close(done)

		err := stream.Run(ctx, m.handleWebcamFrame)
		switch {
		case err == nil:
			m.logger.Info("Webcam stream stopped")
		case errors.Is(err, camera.ErrReadFailed), errors.Is(err, camera.ErrCameraUnavailable):
			m.logger.Warning("Webcam stopped: %v", err)
			m.display.Render(dto.RenderInstruction{Kind: dto.RenderStatus, Message: GrabFailedMessage})
		default:
			m.logger.Error("Webcam processing failed: %v", err)
			m.display.Render(dto.RenderInstruction{Kind: dto.RenderStatus, Message: err.Error()})
		}
	}()
}

func (m *Manager) stopWebcamLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}
