package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
)

type fakeCall struct {
	calls   []string
	view    domain.ViewMode
	failMic error
	sent    []string
}

func (f *fakeCall) ToggleMicrophone(context.Context) error {
	f.calls = append(f.calls, "mic")
	return f.failMic
}

func (f *fakeCall) ToggleCamera(context.Context) error {
	f.calls = append(f.calls, "cam")
	return nil
}

func (f *fakeCall) SwitchDevice(_ context.Context, kind domain.Kind, id string) error {
	f.calls = append(f.calls, "switch "+string(kind)+" "+id)
	return nil
}

func (f *fakeCall) SetViewMode(mode domain.ViewMode) { f.view = mode }

func (f *fakeCall) SendChat(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func TestExec(t *testing.T) {
	ctx := context.Background()
	f := &fakeCall{}

	for _, line := range []string{"m", "c", "  ", "s camera cam-2", "v speaker"} {
		_, err := Exec(ctx, line, f, f)
		require.NoError(t, err, line)
	}
	assert.Equal(t, []string{"mic", "cam", "switch video cam-2"}, f.calls)
	assert.Equal(t, domain.ViewSpeaker, f.view)

	_, err := Exec(ctx, "say  hello there ", f, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello there"}, f.sent)

	help, err := Exec(ctx, "h", f, f)
	require.NoError(t, err)
	assert.Contains(t, help, "toggle microphone")

	_, err = Exec(ctx, "q", f, f)
	assert.ErrorIs(t, err, errQuit)
}

func TestExecRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := &fakeCall{}
	for _, line := range []string{"v", "v mosaic", "s mic", "s speaker x", "say", "dance"} {
		_, err := Exec(ctx, line, f, f)
		assert.Error(t, err, line)
	}
	assert.Empty(t, f.calls)
}

func TestInteractReportsErrorsAndStopsOnQuit(t *testing.T) {
	f := &fakeCall{failMic: errors.New("device busy")}
	var buf bytes.Buffer
	out := NewRenderer(&buf)

	err := interact(context.Background(), strings.NewReader("m\nv gallery\nq\nc\n"), f, f, out, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mic"}, f.calls, "nothing runs after q")
	assert.Equal(t, domain.ViewGallery, f.view)
	assert.Contains(t, buf.String(), "device busy")
}

func TestInteractEndsWhenCallDrops(t *testing.T) {
	f := &fakeCall{}
	lost := make(chan error, 1)
	lost <- errors.New("transport lost")

	pr, pw := io.Pipe()
	defer pw.Close()
	done := make(chan error, 1)
	go func() { done <- interact(context.Background(), pr, f, f, NewRenderer(&bytes.Buffer{}), lost) }()

	select {
	case err := <-done:
		assert.EqualError(t, err, "transport lost")
	case <-time.After(time.Second):
		t.Fatal("interact did not return")
	}
}
