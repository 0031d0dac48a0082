package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

var segmentPattern = regexp.MustCompile(`^(-?\d+),(-?\d+)$`)

// ParseFrame classifies an inbound text frame. Anything that is neither the
// finished sentinel nor "<int>,<int>" is FrameMalformed.
func ParseFrame(text string) Frame {
	if text == FinishedFrame {
		return Frame{Kind: FrameFinished}
	}
	m := segmentPattern.FindStringSubmatch(text)
	if m == nil {
		return Frame{Kind: FrameMalformed}
	}
	left, err := strconv.Atoi(m[1])
	if err != nil {
		return Frame{Kind: FrameMalformed}
	}
	right, err := strconv.Atoi(m[2])
	if err != nil {
		return Frame{Kind: FrameMalformed}
	}
	return Frame{Kind: FrameSegment, Left: left, Right: right}
}

func Encode(payload any) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("trying to encode nil payload")
	}
	return json.Marshal(payload)
}

// Decode reads a JSON body into T.
func Decode[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}
