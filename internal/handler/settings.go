package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"detectionui/internal/dto"
	"detectionui/internal/logger"
	"detectionui/internal/service"
)

type unknownControlError string

func (e unknownControlError) Error() string {
	return fmt.Sprintf("unknown control %q", string(e))
}

func errUnknownControl(name string) error {
	return unknownControlError(name)
}

// GetSettingsHandler returns the current source and threshold.
func GetSettingsHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, manager.Settings())
	}
}

// SourceHandler handles POST {"source": "webcam"|"upload"}.
func SourceHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body struct {
			Source string `json:"source"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		instruction, err := manager.HandleSourceChange(body.Source)
		if err != nil {
			logger.Warning("Rejected source change: %v", err)
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, instruction)
	}
}

// ThresholdHandler handles POST {"threshold": 0.0..1.0}.
func ThresholdHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body struct {
			Threshold *float64 `json:"threshold"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Threshold == nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		instruction, err := manager.HandleThresholdChange(*body.Threshold)
		if err != nil {
			logger.Warning("Rejected threshold change: %v", err)
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, instruction)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var unknown unknownControlError
	switch {
	case errors.Is(err, dto.ErrInvalidSource), errors.Is(err, dto.ErrInvalidThreshold), errors.As(err, &unknown):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrWrongSource):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
