package vision

import (
	"fmt"
	"image"
	"image/color"

	"detectionui/internal/dto"

	"gocv.io/x/gocv"
)

const (
	boxThickness   = 2
	labelOffset    = 10
	labelScale     = 0.5
	labelThickness = 2
)

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Label formats the text drawn above a box, e.g. "person 0.80".
func Label(d dto.Detection) string {
	return fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
}

// Annotate draws a rectangle and a label for each detection onto frame, in order.
// The frame is modified in place; running it twice on the same frame draws everything twice.
func Annotate(frame *gocv.Mat, detections []dto.Detection) error {
	for _, det := range detections {
		rect := det.Rect()
		if err := gocv.Rectangle(frame, rect, boxColor, boxThickness); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}

		pt := image.Pt(rect.Min.X, rect.Min.Y-labelOffset)
		if err := gocv.PutText(frame, Label(det), pt, gocv.FontHersheySimplex, labelScale, boxColor, labelThickness); err != nil {
			return fmt.Errorf("failed to draw text: %w", err)
		}
	}
	return nil
}
