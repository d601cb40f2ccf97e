package camera

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"detectionui/internal/logger"

	"gocv.io/x/gocv"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrReadFailed        = errors.New("failed to grab frame")
)

// Source produces frames. *gocv.VideoCapture satisfies it.
type Source interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Opener acquires a Source.
type Opener func() (Source, error)

// DeviceOpener opens the camera device with the given index.
func DeviceOpener(index int) Opener {
	return func() (Source, error) {
		capture, err := gocv.VideoCaptureDevice(index)
		if err != nil {
			return nil, fmt.Errorf("%w: device %d: %v", ErrCameraUnavailable, index, err)
		}
		if !capture.IsOpened() {
			capture.Close()
			return nil, fmt.Errorf("%w: device %d not opened", ErrCameraUnavailable, index)
		}
		return capture, nil
	}
}

// State of the acquisition loop.
type State int32

const (
	StateInit State = iota
	StateReading
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReading:
		return "READING"
	case StateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// FrameHandler consumes one frame. The frame is only valid during the call.
type FrameHandler func(frame *gocv.Mat) error

// Stream polls a Source until a read fails, the handler fails or the context is cancelled.
type Stream struct {
	open   Opener
	logger *logger.Logger
	state  atomic.Int32
	frames atomic.Uint64
}

func NewStream(open Opener, logger *logger.Logger) *Stream {
	return &Stream{
		open:   open,
		logger: logger,
	}
}

// State returns the current loop state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// Frames returns how many frames were handed to the handler.
func (s *Stream) Frames() uint64 {
	return s.frames.Load()
}

// Run opens the source and feeds frames to handle one at a time.
// It returns nil when ctx is cancelled, ErrReadFailed when the source stops delivering,
// and the handler's error otherwise. The source is released on every path.
func (s *Stream) Run(ctx context.Context, handle FrameHandler) error {
	s.state.Store(int32(StateInit))
	defer s.state.Store(int32(StateStopped))

	source, err := s.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			s.logger.Warning("Failed to release camera: %v", err)
		}
		s.logger.Info("Camera released after %d frame(s)", s.Frames())
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	s.state.Store(int32(StateReading))
	for {
		if ctx.Err() != nil {
			return nil
		}

		if ok := source.Read(&frame); !ok || frame.Empty() {
			return ErrReadFailed
		}

		s.frames.Add(1)
		if err := handle(&frame); err != nil {
			return err
		}
	}
}
