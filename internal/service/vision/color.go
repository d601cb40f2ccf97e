package vision

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ToDisplay returns a new RGB copy of a BGR frame. The caller closes the result unless err is set.
func ToDisplay(frame gocv.Mat) (gocv.Mat, error) {
	return convert(frame, gocv.ColorBGRToRGB)
}

// ToWorking returns a new BGR copy of an RGB frame. The caller closes the result.
func ToWorking(frame gocv.Mat) (gocv.Mat, error) {
	return convert(frame, gocv.ColorRGBToBGR)
}

func convert(frame gocv.Mat, code gocv.ColorConversionCode) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, ErrEmptyImage
	}
	out := gocv.NewMat()
	if err := gocv.CvtColor(frame, &out, code); err != nil {
		out.Close()
		return gocv.Mat{}, fmt.Errorf("failed to convert color: %w", err)
	}
	return out, nil
}
