package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// BackendOpenCV runs the model through gocv's dnn module.
	BackendOpenCV = "opencv"
	// BackendONNXRuntime runs the model through the ONNX Runtime shared library.
	BackendONNXRuntime = "onnxruntime"
)

type Config struct {
	Port             int
	ModelPath        string
	ModelBackend     string
	ONNXRuntimeLib   string
	ClassNamesPath   string
	ModelInputSize   int
	NMSThreshold     float64
	CameraDevice     int
	DefaultThreshold float64
	DefaultSource    string
	MaxUploadMB      int64 // Upload limit in MB
	StaticDirectory  string
	LogDirectory     string
}

// Load reads an optional .env file and builds the configuration from the environment.
func Load() *Config {
	// .env is optional, real environment variables win
	_ = godotenv.Load()

	return &Config{
		Port:             getEnvAsInt("PORT", 8080),
		ModelPath:        getEnv("MODEL_PATH", filepath.Join(".", "models", "yolov8n.onnx")),
		ModelBackend:     strings.ToLower(getEnv("MODEL_BACKEND", BackendOpenCV)),
		ONNXRuntimeLib:   getEnv("ONNXRUNTIME_LIB", filepath.Join(".", "lib", "libonnxruntime.so")),
		ClassNamesPath:   getEnv("CLASS_NAMES_PATH", ""),
		ModelInputSize:   getEnvAsInt("MODEL_INPUT_SIZE", 640),
		NMSThreshold:     getEnvAsFloat("NMS_THRESHOLD", 0.45),
		CameraDevice:     getEnvAsInt("CAMERA_DEVICE", 0),
		DefaultThreshold: getEnvAsFloat("DEFAULT_THRESHOLD", 0.25),
		DefaultSource:    getEnv("DEFAULT_SOURCE", "webcam"),
		MaxUploadMB:      getEnvAsInt64("MAX_UPLOAD_MB", 20),
		StaticDirectory:  getEnv("STATIC_DIR", "static"),
		LogDirectory:     getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
