package model

type FrameType string

const (
	FrameTypeTree  FrameType = "calltree"
	FrameTypeReset FrameType = "calltree_reset"
)

// Envelope is transport-agnostic framing for stream payloads.
type Envelope struct {
	Type          FrameType `json:"type"`
	SessionID     string    `json:"session_id"`
	TimestampUnix int64     `json:"timestamp_unix"`
	Payload       any       `json:"payload"`
}
