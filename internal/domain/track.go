package domain

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Kinds lists every media kind in a stable order.
var Kinds = []Kind{KindAudio, KindVideo}

// ParseKind accepts media kinds as well as device-selection names ("audioinput", "camera", ...).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio", "audioinput", "microphone", "mic":
		return KindAudio, nil
	case "video", "videoinput", "camera", "cam":
		return KindVideo, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Track is a handle to one live media source.
// Remote handles are borrowed from the engine; local handles are owned by the session controller.
type Track interface {
	ID() string
	Kind() Kind
	// DeviceID is empty for remote tracks.
	DeviceID() string
	// Stop releases the underlying source. Calling it twice is a no-op.
	Stop()
}
