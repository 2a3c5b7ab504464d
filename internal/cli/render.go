package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	chatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	toggleActiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("10"))

	toggleInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8"))

	speakingBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("10")).
				Padding(0, 1)

	tileBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

const (
	tileWidth    = 22
	stageWidth   = 48
	tilesPerLine = 3
)

// Renderer draws the room every time the roster changes.
type Renderer struct {
	w io.Writer

	mu   sync.Mutex
	last domain.RoomSnapshot
}

func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Render is used as the roster callback.
func (r *Renderer) Render(snap domain.RoomSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = snap
	fmt.Fprintln(r.w, View(snap))
}

func (r *Renderer) Chat(msg engine.ChatReceived) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := string(msg.From)
	if p, ok := r.last.Lookup(msg.From); ok {
		name = p.DisplayName
	}
	fmt.Fprintf(r.w, "%s %s %s\n", dimStyle.Render(msg.At.Format(time.Kitchen)), chatStyle.Render(name+":"), msg.Text)
}

func (r *Renderer) Status(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, statusStyle.Render(msg))
}

func (r *Renderer) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, errorStyle.Render("✕ "+err.Error()))
}

// View lays the room out according to its view mode.
func View(snap domain.RoomSnapshot) string {
	header := titleStyle.Render("huddle") + dimStyle.Render(fmt.Sprintf(" · %s · %s · %s · %d in call",
		orDash(string(snap.Room)), snap.State, orDash(string(snap.ViewMode)), snap.Count()))

	people := snap.Participants()
	var body string
	switch snap.ViewMode {
	case domain.ViewSpeaker:
		body = speakerView(snap, people)
	case domain.ViewGallery:
		body = galleryView(snap, people)
	default:
		body = gridView(snap, people)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func gridView(snap domain.RoomSnapshot, people []domain.Participant) string {
	if len(people) == 0 {
		return dimStyle.Render("nobody here yet")
	}
	var rows []string
	for i := 0; i < len(people); i += tilesPerLine {
		end := min(i+tilesPerLine, len(people))
		var tiles []string
		for _, p := range people[i:end] {
			tiles = append(tiles, tile(snap, p, tileWidth))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, tiles...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// speakerView puts the active speaker on stage, or the first participant when nobody speaks.
func speakerView(snap domain.RoomSnapshot, people []domain.Participant) string {
	if len(people) == 0 {
		return dimStyle.Render("nobody here yet")
	}
	stage := people[0]
	if p, ok := snap.Lookup(snap.ActiveSpeakerID); ok {
		stage = p
	}
	var others []string
	for _, p := range people {
		if p.ID != stage.ID {
			others = append(others, name(p))
		}
	}
	out := tile(snap, stage, stageWidth)
	if len(others) > 0 {
		out = lipgloss.JoinVertical(lipgloss.Left, out, dimStyle.Render(strings.Join(others, "  ")))
	}
	return out
}

func galleryView(snap domain.RoomSnapshot, people []domain.Participant) string {
	lines := make([]string, 0, len(people))
	for _, p := range people {
		marker := "  "
		if p.ID == snap.ActiveSpeakerID {
			marker = selectedStyle.Render("▶ ")
		}
		lines = append(lines, marker+fmt.Sprintf("%-20s", name(p))+" "+mediaLine(p))
	}
	if len(lines) == 0 {
		return dimStyle.Render("nobody here yet")
	}
	return strings.Join(lines, "\n")
}

func tile(snap domain.RoomSnapshot, p domain.Participant, width int) string {
	style := tileBoxStyle
	if p.ID == snap.ActiveSpeakerID {
		style = speakingBoxStyle
	}
	return style.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, name(p), mediaLine(p)))
}

func name(p domain.Participant) string {
	n := p.DisplayName
	if n == "" {
		n = string(p.ID)
	}
	if p.IsLocal {
		n += " (you)"
	}
	return n
}

func mediaLine(p domain.Participant) string {
	return indicator("mic", p.MicrophoneEnabled, p.AudioTrack != nil) + " " +
		indicator("cam", p.CameraEnabled, p.VideoTrack != nil)
}

// indicator shows a kind as live only when it is both enabled and backed by a track.
func indicator(label string, enabled, hasTrack bool) string {
	switch {
	case enabled && hasTrack:
		return toggleActiveStyle.Render(label)
	case enabled:
		return toggleInactiveStyle.Render(label + "…")
	default:
		return toggleInactiveStyle.Render(label + "✕")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
