package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"detectionui/internal/config"
	"detectionui/internal/logger"
	"detectionui/internal/route"
	"detectionui/internal/service"
	"detectionui/internal/service/ai"
	"detectionui/internal/service/camera"
	"detectionui/internal/service/display"
	"detectionui/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	detector   ai.Detector
	hubService *websocket.HubService
	viewer     *display.Viewer
	manager    *service.Manager
}

// NewApp loads the configuration and the model once, then wires the services around them.
func NewApp() (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	detector, err := ai.NewDetector(cfg, log)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	hubService := websocket.NewHubService(log)
	viewer := display.NewViewer(hubService, log)

	mng, err := service.NewManager(detector, viewer, camera.DeviceOpener(cfg.CameraDevice), cfg, log)
	if err != nil {
		detector.Close()
		log.Close()
		return nil, err
	}

	return &App{
		config:     cfg,
		logger:     log,
		detector:   detector,
		hubService: hubService,
		viewer:     viewer,
		manager:    mng,
	}, nil
}

// Run serves HTTP until SIGINT/SIGTERM, then stops the webcam loop and releases the model.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start background services
	go a.hubService.Run(ctx)
	a.manager.Start(ctx)

	router := route.SetupRoutes(a.manager, a.hubService, a.viewer, a.config, a.logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// requests end with the process, long-lived streams included
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	fmt.Printf("🚀 YOLOv8 Real-Time Object Detection\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🤖 AI Model: %s (%s)\n", a.config.ModelPath, a.config.ModelBackend)
	fmt.Printf("📷 Camera: %d\n", a.config.CameraDevice)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		err = shutdown(server, shutdownTimeout, a.logger)
	}

	a.manager.Stop()
	if cerr := a.detector.Close(); cerr != nil {
		a.logger.Error("Failed to release model: %v", cerr)
	}
	a.logger.Close()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// shutdown stops the server gracefully and force-closes whatever is still open after timeout.
func shutdown(server *http.Server, timeout time.Duration, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warning("Graceful shutdown timed out, closing remaining connections")
		if cerr := server.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			return cerr
		}
		return nil
	}
	return err
}
