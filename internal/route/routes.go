package route

import (
	"net/http"
	"os"
	"path/filepath"

	"detectionui/internal/config"
	"detectionui/internal/handler"
	"detectionui/internal/logger"
	"detectionui/internal/middleware"
	"detectionui/internal/service"
	"detectionui/internal/service/display"
	hub "detectionui/internal/service/websocket"
)

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean(path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers static file serving, the viewer websocket, the control and upload API,
// the MJPEG stream and the log endpoints, wrapped with the request logging middleware.
func SetupRoutes(manager *service.Manager, hubService *hub.HubService, viewer *display.Viewer,
	cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	// Display
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(manager, hubService, logger))
	mux.Handle("/stream.mjpg", viewer.Stream())

	// Controls
	mux.HandleFunc("/api/settings", handler.GetSettingsHandler(manager))
	mux.HandleFunc("/api/settings/source", handler.SourceHandler(manager, logger))
	mux.HandleFunc("/api/settings/threshold", handler.ThresholdHandler(manager, logger))
	mux.HandleFunc("/api/upload", handler.UploadHandler(manager, cfg, logger))

	// Log endpoints
	for level, file := range map[string]string{
		"info":    "info.log",
		"warning": "warning.log",
		"error":   "error.log",
	} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(logger, file))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, file))
	}

	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDirectory))

	return middleware.LoggingMiddleware(mux, logger)
}
