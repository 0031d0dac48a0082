package protocol

// responses coming back from the server.

type InitResponse struct {
	ID string `json:"id"`
}

type TokenResponse struct {
	Chunk *string `json:"chunk"` // nil when the field is missing
}

type FrameKind uint8

const (
	FrameMalformed FrameKind = iota
	FrameSegment
	FrameFinished
)

// Frame is one classified inbound stream message.
type Frame struct {
	Kind  FrameKind
	Left  int
	Right int
}
