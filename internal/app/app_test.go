package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"detectionui/internal/logger"
	"detectionui/internal/service/display"
)

type nopHub struct{}

func (nopHub) Broadcast([]byte) {}

// startServer serves handler on a random port with request contexts derived from base.
func startServer(t *testing.T, base context.Context, handler http.Handler) (*http.Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	server := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return base },
	}
	go server.Serve(ln)
	return server, "http://" + ln.Addr().String()
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

func TestShutdown_WithIdleMJPEGClient(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	viewer := display.NewViewer(nopHub{}, logger.NewDiscard())
	server, url := startServer(t, base, viewer.Stream())

	// no frame is ever rendered, so the client never gets a response
	go http.Get(url)
	waitFor(t, "stream client", func() bool { return viewer.StreamClientCount() == 1 })

	cancel()
	start := time.Now()
	if err := shutdown(server, 2*time.Second, logger.NewDiscard()); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took %s, expected the stream to end promptly", elapsed)
	}
	if viewer.StreamClientCount() != 0 {
		t.Errorf("Expected no running stream handlers, got %d", viewer.StreamClientCount())
	}
}

func TestShutdown_ForceClosesStuckHandlers(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	entered := make(chan struct{}, 1)
	server, url := startServer(t, context.Background(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	}))

	go http.Get(url)
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("Handler was never called")
	}

	if err := shutdown(server, 100*time.Millisecond, logger.NewDiscard()); err != nil {
		t.Errorf("Expected timed out shutdown to be treated as clean, got %v", err)
	}
}
