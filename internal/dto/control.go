package dto

// ControlEvent is sent by the browser over the viewer websocket.
type ControlEvent struct {
	Type      string   `json:"type"` // "source" or "threshold"
	Source    string   `json:"source,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	RenderInstruction
	Filename string `json:"filename"`
}
