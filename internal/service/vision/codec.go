package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// JPEGQuality is used for every frame pushed to the browser.
const JPEGQuality = 85

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrEmptyImage      = errors.New("image is empty or undecodable")
)

// AllowedExtensions lists the upload file types accepted by the picker.
var AllowedExtensions = []string{"jpg", "jpeg", "png"}

// CheckExtension reports whether the filename has one of AllowedExtensions.
func CheckExtension(filename string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
}

// DecodeUpload decodes an uploaded file straight into a BGR frame.
// The caller closes the result; on error nothing is allocated.
func DecodeUpload(filename string, data []byte) (gocv.Mat, error) {
	if err := CheckExtension(filename); err != nil {
		return gocv.Mat{}, err
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrEmptyImage, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, ErrEmptyImage
	}
	return mat, nil
}

// EncodeRGB JPEG-encodes an 8-bit 3-channel RGB frame.
func EncodeRGB(rgb gocv.Mat) ([]byte, error) {
	if rgb.Empty() {
		return nil, ErrEmptyImage
	}
	if rgb.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("expected 8-bit 3-channel frame, got %v", rgb.Type())
	}

	width, height := rgb.Cols(), rgb.Rows()
	pix := rgb.ToBytes()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i+2 < len(pix); i, j = i+3, j+4 {
		img.Pix[j] = pix[i]
		img.Pix[j+1] = pix[i+1]
		img.Pix[j+2] = pix[i+2]
		img.Pix[j+3] = 0xFF
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
