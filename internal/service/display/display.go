package display

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"detectionui/internal/dto"
	"detectionui/internal/logger"

	"github.com/hybridgroup/mjpeg"
)

// wakeInterval paces the frames pushed to a stream handler that has to exit.
const wakeInterval = 50 * time.Millisecond

var errStreamClosed = errors.New("stream closed")

// Display consumes render instructions.
type Display interface {
	Render(instruction dto.RenderInstruction)
}

// Broadcaster pushes an encoded message to every connected viewer.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Viewer sends instructions to the browser viewers and mirrors live frames to an MJPEG stream.
type Viewer struct {
	hub    Broadcaster
	stream *mjpeg.Stream
	logger *logger.Logger

	mu        sync.Mutex // serializes UpdateJPEG
	lastFrame []byte
	streaming atomic.Int32
}

func NewViewer(hub Broadcaster, logger *logger.Logger) *Viewer {
	return &Viewer{
		hub:    hub,
		stream: mjpeg.NewStream(),
		logger: logger,
	}
}

// Render implements Display.
func (v *Viewer) Render(instruction dto.RenderInstruction) {
	if instruction.Kind == dto.RenderFrame && len(instruction.JPEG) > 0 {
		v.updateJPEG(instruction.JPEG)
	}

	msg, err := json.Marshal(instruction)
	if err != nil {
		v.logger.Error("Failed to encode render instruction: %v", err)
		return
	}
	v.hub.Broadcast(msg)
}

func (v *Viewer) updateJPEG(jpeg []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if jpeg != nil {
		v.lastFrame = jpeg
	}
	v.stream.UpdateJPEG(v.lastFrame)
}

// Stream returns the MJPEG handler showing the latest webcam frame.
// A handler returns as soon as its request context is done, even when no frames arrive.
func (v *Viewer) Stream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v.streaming.Add(1)
		defer v.streaming.Add(-1)

		ctx := r.Context()
		done := make(chan struct{})
		defer close(done)
		go v.wakeOnDone(ctx, done)

		v.stream.ServeHTTP(&contextWriter{ResponseWriter: w, ctx: ctx}, r)
	})
}

// StreamClientCount returns how many MJPEG handlers are running.
func (v *Viewer) StreamClientCount() int {
	return int(v.streaming.Load())
}

// wakeOnDone keeps pushing the last frame once ctx is done, so the blocked
// handler gets a write, fails it and returns.
func (v *Viewer) wakeOnDone(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()
	for {
		v.updateJPEG(nil)
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

// contextWriter refuses writes once the request is over.
type contextWriter struct {
	http.ResponseWriter
	ctx context.Context
}

func (w *contextWriter) Write(b []byte) (int, error) {
	if w.ctx.Err() != nil {
		return 0, errStreamClosed
	}
	return w.ResponseWriter.Write(b)
}

func (w *contextWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *contextWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
