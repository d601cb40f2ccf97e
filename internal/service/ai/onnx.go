package ai

import (
	"fmt"
	"sync"

	"detectionui/internal/dto"
	"detectionui/internal/logger"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// ONNXDetector runs a YOLOv8 ONNX export through the ONNX Runtime shared library.
type ONNXDetector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
	inputSize int
	rows      int
	anchors   int
	nms       float32
	classes   []string
	logger    *logger.Logger
	mu        sync.Mutex
}

// NewONNXDetector initializes the runtime environment and an inference session with fixed tensors.
func NewONNXDetector(libPath, modelPath string, inputSize int, nms float32, classes []string, logger *logger.Logger) (*ONNXDetector, error) {
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("error initializing ORT environment: %w", err)
	}

	d := &ONNXDetector{
		inputSize: inputSize,
		rows:      4 + len(classes),
		anchors:   anchorCount(inputSize),
		nms:       nms,
		classes:   classes,
		logger:    logger,
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputSize), int64(inputSize)))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(d.rows), int64(d.anchors)))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	d.session = session
	d.input = inputTensor
	d.output = outputTensor

	logger.Info("Detection network initialized successfully (onnxruntime, %s)", modelPath)
	return d, nil
}

// Detect runs the session on the frame and returns detections at or above threshold.
func (d *ONNXDetector) Detect(frame gocv.Mat, threshold float32) ([]dto.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, ErrModelNotLoaded
	}
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	// ToImage swaps BGR to RGB for 3-channel mats
	img, err := frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	box := NewLetterbox(frame.Cols(), frame.Rows(), d.inputSize)
	if err := fillInput(d.input.GetData(), img, box); err != nil {
		return nil, err
	}

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	candidates := ParseYOLOv8(d.output.GetData(), d.rows, d.anchors, box, threshold, d.classes)
	if len(candidates) == 0 {
		return nil, nil
	}
	return NonMaxSuppression(candidates, d.nms), nil
}

// Classes returns the class-index-to-name table.
func (d *ONNXDetector) Classes() []string {
	return d.classes
}

// Close destroys the session, its tensors and the runtime environment.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}
	errSession := d.session.Destroy()
	d.input.Destroy()
	d.output.Destroy()
	d.session = nil

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}
	return errSession
}
