package config

import "testing"

var configKeys = []string{
	"PORT", "MODEL_PATH", "MODEL_BACKEND", "ONNXRUNTIME_LIB", "CLASS_NAMES_PATH", "MODEL_INPUT_SIZE",
	"NMS_THRESHOLD", "CAMERA_DEVICE", "DEFAULT_THRESHOLD", "DEFAULT_SOURCE", "MAX_UPLOAD_MB",
	"STATIC_DIR", "LOG_DIR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Port)
	}
	if cfg.ModelBackend != BackendOpenCV {
		t.Errorf("Expected backend %q, got %q", BackendOpenCV, cfg.ModelBackend)
	}
	if cfg.ModelInputSize != 640 {
		t.Errorf("Expected input size 640, got %d", cfg.ModelInputSize)
	}
	if cfg.DefaultThreshold != 0.25 {
		t.Errorf("Expected default threshold 0.25, got %v", cfg.DefaultThreshold)
	}
	if cfg.DefaultSource != "webcam" {
		t.Errorf("Expected default source webcam, got %q", cfg.DefaultSource)
	}
	if cfg.MaxUploadBytes() != 20<<20 {
		t.Errorf("Expected 20MB upload limit, got %d bytes", cfg.MaxUploadBytes())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("MODEL_BACKEND", "ONNXRuntime")
	t.Setenv("DEFAULT_THRESHOLD", "0.6")
	t.Setenv("DEFAULT_SOURCE", "upload")
	t.Setenv("CAMERA_DEVICE", "2")
	t.Setenv("MAX_UPLOAD_MB", "1")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Port)
	}
	if cfg.ModelBackend != BackendONNXRuntime {
		t.Errorf("Expected backend to be lowercased to %q, got %q", BackendONNXRuntime, cfg.ModelBackend)
	}
	if cfg.DefaultThreshold != 0.6 {
		t.Errorf("Expected threshold 0.6, got %v", cfg.DefaultThreshold)
	}
	if cfg.DefaultSource != "upload" {
		t.Errorf("Expected source upload, got %q", cfg.DefaultSource)
	}
	if cfg.CameraDevice != 2 {
		t.Errorf("Expected camera 2, got %d", cfg.CameraDevice)
	}
	if cfg.MaxUploadBytes() != 1<<20 {
		t.Errorf("Expected 1MB upload limit, got %d bytes", cfg.MaxUploadBytes())
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "abc")
	t.Setenv("NMS_THRESHOLD", "high")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Expected fallback port 8080, got %d", cfg.Port)
	}
	if cfg.NMSThreshold != 0.45 {
		t.Errorf("Expected fallback NMS threshold 0.45, got %v", cfg.NMSThreshold)
	}
}
