package dto

import "image"

// Detection is a single object found by the detector, in frame pixel coordinates.
type Detection struct {
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
	Confidence float32 `json:"confidence"`
	ClassID    int     `json:"classId"`
	ClassName  string  `json:"className"`
}

// Rect returns the box with coordinates truncated to whole pixels.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(int(d.X1), int(d.Y1), int(d.X2), int(d.Y2))
}
