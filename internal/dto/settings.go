package dto

import (
	"errors"
	"fmt"
	"strings"
)

// Source selects where frames come from.
type Source string

const (
	SourceWebcam Source = "webcam"
	SourceUpload Source = "upload"
)

var (
	ErrInvalidSource    = errors.New("invalid input source")
	ErrInvalidThreshold = errors.New("confidence threshold must be within [0.0, 1.0]")
)

// Label returns the text shown next to the radio button.
func (s Source) Label() string {
	switch s {
	case SourceWebcam:
		return "Webcam"
	case SourceUpload:
		return "Upload Image"
	}
	return string(s)
}

// ParseSource accepts either the wire value or the UI label.
func ParseSource(v string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "webcam":
		return SourceWebcam, nil
	case "upload", "upload image":
		return SourceUpload, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSource, v)
}

// ValidateThreshold checks that t lies in [0.0, 1.0].
func ValidateThreshold(t float64) error {
	// NaN fails both comparisons
	if !(t >= 0 && t <= 1) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, t)
	}
	return nil
}

// Settings holds the two user controls.
type Settings struct {
	Source    Source  `json:"source"`
	Threshold float64 `json:"threshold"`
}
