package handler

import (
	"errors"
	"io"
	"net/http"

	"detectionui/internal/config"
	"detectionui/internal/dto"
	"detectionui/internal/logger"
	"detectionui/internal/service"
	"detectionui/internal/service/vision"
)

// UploadHandler handles POST /api/upload with a multipart "file" field.
// A request without a file is the idle state and gets 204 with no processing.
func UploadHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes())
		file, header, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Invalid upload", http.StatusBadRequest)
			return
		}
		defer file.Close()

		if err := vision.CheckExtension(header.Filename); err != nil {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			logger.Error("Error reading upload %s: %v", header.Filename, err)
			http.Error(w, "Error reading file", http.StatusBadRequest)
			return
		}

		instruction, err := manager.HandleUpload(header.Filename, data)
		switch {
		case err == nil && instruction == nil:
			w.WriteHeader(http.StatusNoContent)
		case err == nil:
			writeJSON(w, http.StatusOK, dto.UploadResponse{RenderInstruction: *instruction, Filename: header.Filename})
		case errors.Is(err, service.ErrWrongSource):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, vision.ErrUnsupportedType):
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		case errors.Is(err, vision.ErrEmptyImage):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			logger.Error("Upload %s failed: %v", header.Filename, err)
			http.Error(w, "Detection failed", http.StatusInternalServerError)
		}
	}
}
