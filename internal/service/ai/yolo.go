package ai

import (
	"fmt"
	"image"
	"math"
	"sort"

	"detectionui/internal/dto"

	"github.com/nfnt/resize"
)

// padValue fills the letterbox border, as the YOLOv8 training pipeline does.
const padValue = 114

// Letterbox describes how a frame was fitted into the square model input:
// scaled by Scale keeping its aspect ratio, then padded to InputSize.
type Letterbox struct {
	InputSize     int
	Width, Height int // source frame
	NewW, NewH    int // scaled frame inside the input
	Top, Bottom   int
	Left, Right   int
	Scale         float32
}

// NewLetterbox computes the letterbox of a width x height frame into a square input.
func NewLetterbox(width, height, inputSize int) Letterbox {
	scale := math.Min(float64(inputSize)/float64(width), float64(inputSize)/float64(height))
	newW := int(math.Round(float64(width) * scale))
	newH := int(math.Round(float64(height) * scale))

	left := (inputSize - newW) / 2
	top := (inputSize - newH) / 2
	return Letterbox{
		InputSize: inputSize,
		Width:     width,
		Height:    height,
		NewW:      newW,
		NewH:      newH,
		Top:       top,
		Bottom:    inputSize - newH - top,
		Left:      left,
		Right:     inputSize - newW - left,
		Scale:     float32(scale),
	}
}

// ToFrame maps a point from model input space back to frame pixels, clipped to the frame.
func (l Letterbox) ToFrame(x, y float32) (float32, float32) {
	fx := (x - float32(l.Left)) / l.Scale
	fy := (y - float32(l.Top)) / l.Scale
	return clamp(fx, float32(l.Width)), clamp(fy, float32(l.Height))
}

func clamp(v, max float32) float32 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// ParseYOLOv8 decodes a YOLOv8 output tensor laid out as [rows][anchors], where
// rows = 4 box values (cx, cy, w, h) followed by one score per class.
// Boxes are mapped from model input space to frame space through the letterbox.
// Candidates scoring below threshold are dropped.
func ParseYOLOv8(data []float32, rows, anchors int, box Letterbox, threshold float32, classes []string) []dto.Detection {
	if rows <= 4 || anchors <= 0 || len(data) < rows*anchors || box.Scale <= 0 {
		return nil
	}

	var detections []dto.Detection
	for i := 0; i < anchors; i++ {
		maxScore := float32(-1)
		maxClassID := 0
		for c := 4; c < rows; c++ {
			if score := data[c*anchors+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if maxScore < threshold {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		x1, y1 := box.ToFrame(cx-w/2, cy-h/2)
		x2, y2 := box.ToFrame(cx+w/2, cy+h/2)
		detections = append(detections, dto.Detection{
			X1:         x1,
			Y1:         y1,
			X2:         x2,
			Y2:         y2,
			Confidence: maxScore,
			ClassID:    maxClassID,
			ClassName:  ClassName(classes, maxClassID),
		})
	}
	return detections
}

// NonMaxSuppression keeps the highest scoring box of every group of same-class boxes
// overlapping by more than iouThreshold. Boxes of different classes never suppress each other.
// The result is ordered by confidence, highest first.
func NonMaxSuppression(detections []dto.Detection, iouThreshold float32) []dto.Detection {
	sorted := make([]dto.Detection, len(detections))
	copy(sorted, detections)
	sortByConfidence(sorted)

	kept := make([]dto.Detection, 0, len(sorted))
	for _, candidate := range sorted {
		overlaps := false
		for _, existing := range kept {
			if existing.ClassID != candidate.ClassID {
				continue
			}
			if IoU(candidate.Rect(), existing.Rect()) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, candidate)
		}
	}
	return kept
}

// groupByClass returns candidate indices per class id, in first-seen class order.
func groupByClass(detections []dto.Detection) [][]int {
	index := make(map[int]int)
	var groups [][]int
	for i, d := range detections {
		g, ok := index[d.ClassID]
		if !ok {
			g = len(groups)
			index[d.ClassID] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func sortByConfidence(detections []dto.Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
}

// IoU returns the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float32 {
	a, b = a.Canon(), b.Canon()
	inter := a.Intersect(b)
	interArea := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - interArea
	if union <= 0 {
		return 0
	}
	return float32(interArea) / float32(union)
}

// ClassName resolves a class index through the table.
func ClassName(classes []string, classID int) string {
	if classID >= 0 && classID < len(classes) {
		return classes[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

// fillInput letterboxes img into a planar RGB tensor of size x size, scaled to [0, 1].
func fillInput(data []float32, img image.Image, box Letterbox) error {
	size := box.InputSize
	channelSize := size * size
	if len(data) < channelSize*3 {
		return fmt.Errorf("input tensor holds %d floats, needs %d", len(data), channelSize*3)
	}
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	pad := float32(padValue) / 255.0
	for i := 0; i < channelSize*3; i++ {
		data[i] = pad
	}

	resized := resize.Resize(uint(box.NewW), uint(box.NewH), img, resize.Bilinear)
	bounds := resized.Bounds()
	for y := 0; y < box.NewH && y < bounds.Dy(); y++ {
		row := (y + box.Top) * size
		for x := 0; x < box.NewW && x < bounds.Dx(); x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := row + x + box.Left
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
		}
	}
	return nil
}

// anchorCount returns the number of YOLOv8 prediction cells for a square input (strides 8, 16, 32).
func anchorCount(inputSize int) int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		n := inputSize / stride
		total += n * n
	}
	return total
}
