package dto

// RenderKind tells the browser what to do with an instruction.
type RenderKind string

const (
	// RenderFrame replaces the live image in place (webcam mode).
	RenderFrame RenderKind = "frame"
	// RenderImage creates a new captioned image element (upload mode).
	RenderImage RenderKind = "image"
	// RenderStatus shows a text message.
	RenderStatus RenderKind = "status"
	// RenderSettings syncs the sidebar controls.
	RenderSettings RenderKind = "settings"
)

// RenderInstruction is produced by the control handlers and consumed by the display.
type RenderInstruction struct {
	Kind       RenderKind  `json:"type"`
	Image      string      `json:"image,omitempty"` // base64 JPEG
	Caption    string      `json:"caption,omitempty"`
	Message    string      `json:"message,omitempty"`
	Detections []Detection `json:"detections,omitempty"`
	Settings   *Settings   `json:"settings,omitempty"`

	JPEG []byte `json:"-"`
}
