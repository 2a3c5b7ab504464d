package domain

import (
	"fmt"
	"strings"
)

type RoomName string

// NormalizeRoomName trims and lower-cases a room identifier so "Room1" and " room1" meet in the same room.
func NormalizeRoomName(name string) RoomName {
	return RoomName(strings.ToLower(strings.TrimSpace(name)))
}

type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateJoining      ConnectionState = "joining"
	StateActive       ConnectionState = "active"
	StateLeaving      ConnectionState = "leaving"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
)

// Terminal reports whether no further transition is possible for this session instance.
func (s ConnectionState) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

type ViewMode string

const (
	ViewGrid    ViewMode = "grid"
	ViewSpeaker ViewMode = "speaker"
	ViewGallery ViewMode = "gallery"
)

func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case ViewGrid:
		return ViewGrid, nil
	case ViewSpeaker:
		return ViewSpeaker, nil
	case ViewGallery:
		return ViewGallery, nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}
