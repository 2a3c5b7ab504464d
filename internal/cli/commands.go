package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Huddle/internal/domain"
)

// Call is the part of the session the interactive commands drive.
type Call interface {
	ToggleMicrophone(ctx context.Context) error
	ToggleCamera(ctx context.Context) error
	SwitchDevice(ctx context.Context, kind domain.Kind, deviceID string) error
	SetViewMode(mode domain.ViewMode)
}

type ChatSender interface {
	SendChat(ctx context.Context, text string) error
}

var errQuit = errors.New("quit")

const helpText = `m             toggle microphone
c             toggle camera
v <mode>      view: grid, speaker or gallery
s <kind> <id> switch device (kind: mic or camera)
say <text>    send a chat message
q             leave the call`

// Exec runs one line typed by the user. It returns errQuit for q.
func Exec(ctx context.Context, line string, call Call, chat ChatSender) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	switch fields[0] {
	case "q", "quit", "leave":
		return "", errQuit
	case "h", "help", "?":
		return helpText, nil
	case "m", "mic":
		return "", call.ToggleMicrophone(ctx)
	case "c", "cam", "camera":
		return "", call.ToggleCamera(ctx)
	case "v", "view":
		if len(fields) != 2 {
			return "", errors.New("usage: v <grid|speaker|gallery>")
		}
		mode, err := domain.ParseViewMode(fields[1])
		if err != nil {
			return "", err
		}
		call.SetViewMode(mode)
		return "", nil
	case "s", "switch":
		if len(fields) != 3 {
			return "", errors.New("usage: s <mic|camera> <device-id>")
		}
		kind, err := domain.ParseKind(fields[1])
		if err != nil {
			return "", err
		}
		if err := call.SwitchDevice(ctx, kind, fields[2]); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s now on %s", kind, fields[2]), nil
	case "say":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "say"))
		if text == "" {
			return "", errors.New("usage: say <text>")
		}
		return "", chat.SendChat(ctx, text)
	}
	return "", fmt.Errorf("unknown command %q, type h for help", fields[0])
}
