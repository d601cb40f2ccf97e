package ai

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"detectionui/internal/config"
	"detectionui/internal/dto"
	"detectionui/internal/logger"

	"gocv.io/x/gocv"
)

var (
	ErrEmptyFrame     = errors.New("frame is empty")
	ErrModelNotLoaded = errors.New("detection network not initialized")
)

// Detector runs a pretrained model over a BGR frame.
// Every returned detection has Confidence >= threshold.
type Detector interface {
	Detect(frame gocv.Mat, threshold float32) ([]dto.Detection, error)
	Classes() []string
	Close() error
}

// NewDetector loads the class table and the model backend selected in the config.
func NewDetector(cfg *config.Config, logger *logger.Logger) (Detector, error) {
	classes := COCOClasses
	if cfg.ClassNamesPath != "" {
		loaded, err := LoadClassNames(cfg.ClassNamesPath)
		if err != nil {
			return nil, err
		}
		classes = loaded
	}

	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	switch cfg.ModelBackend {
	case config.BackendOpenCV:
		return NewOpenCVDetector(cfg.ModelPath, cfg.ModelInputSize, float32(cfg.NMSThreshold), classes, logger)
	case config.BackendONNXRuntime:
		return NewONNXDetector(cfg.ONNXRuntimeLib, cfg.ModelPath, cfg.ModelInputSize, float32(cfg.NMSThreshold), classes, logger)
	default:
		return nil, fmt.Errorf("unknown model backend: %s", cfg.ModelBackend)
	}
}

// OpenCVDetector runs a YOLOv8 ONNX export through gocv's dnn module.
type OpenCVDetector struct {
	net       gocv.Net
	inputSize image.Point
	nms       float32
	classes   []string
	logger    *logger.Logger
	mu        sync.Mutex
}

// NewOpenCVDetector loads the network and sets backend/target preferences.
func NewOpenCVDetector(modelPath string, inputSize int, nms float32, classes []string, logger *logger.Logger) (*OpenCVDetector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	logger.Info("Detection network initialized successfully (opencv, %s)", modelPath)
	return &OpenCVDetector{
		net:       net,
		inputSize: image.Pt(inputSize, inputSize),
		nms:       nms,
		classes:   classes,
		logger:    logger,
	}, nil
}

// Detect runs the network on the frame and returns detections at or above threshold.
func (d *OpenCVDetector) Detect(frame gocv.Mat, threshold float32) ([]dto.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.net.Empty() {
		return nil, ErrModelNotLoaded
	}
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	box := NewLetterbox(frame.Cols(), frame.Rows(), d.inputSize.X)
	input, err := letterboxMat(frame, box)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	blob := gocv.BlobFromImage(input, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	// [1, 4+classes, anchors]
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}

	candidates := ParseYOLOv8(data, dims[1], dims[2], box, threshold, d.classes)
	if len(candidates) == 0 {
		return nil, nil
	}

	var results []dto.Detection
	for _, group := range groupByClass(candidates) {
		boxes := make([]image.Rectangle, len(group))
		scores := make([]float32, len(group))
		for i, idx := range group {
			boxes[i] = candidates[idx].Rect()
			scores[i] = candidates[idx].Confidence
		}
		for _, keep := range gocv.NMSBoxes(boxes, scores, threshold, d.nms) {
			results = append(results, candidates[group[keep]])
		}
	}
	sortByConfidence(results)
	return results, nil
}

// letterboxMat resizes the frame keeping its aspect ratio and pads it to the square model input.
func letterboxMat(frame gocv.Mat, box Letterbox) (gocv.Mat, error) {
	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(frame, &resized, image.Pt(box.NewW, box.NewH), 0, 0, gocv.InterpolationLinear); err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to resize frame: %w", err)
	}

	out := gocv.NewMat()
	pad := color.RGBA{R: padValue, G: padValue, B: padValue, A: 0}
	if err := gocv.CopyMakeBorder(resized, &out, box.Top, box.Bottom, box.Left, box.Right, gocv.BorderConstant, pad); err != nil {
		out.Close()
		return gocv.Mat{}, fmt.Errorf("failed to pad frame: %w", err)
	}
	return out, nil
}

// Classes returns the class-index-to-name table.
func (d *OpenCVDetector) Classes() []string {
	return d.classes
}

// Close releases the network.
func (d *OpenCVDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
