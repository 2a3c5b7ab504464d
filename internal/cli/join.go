package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/adapters/mesh"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/token"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/session"
	"github.com/dkeye/Huddle/internal/settings"
)

const levelInterval = 200 * time.Millisecond

type joinOptions struct {
	room      string
	name      string
	muted     bool
	cameraOff bool
	view      string
	mic       string
	camera    string
	save      bool
}

func NewJoinCmd(deps *Dependencies) *cobra.Command {
	var opts joinOptions

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room",
		Long:  "Join a room and show who is in it. Type h for the interactive commands, q or Ctrl+C to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, deps, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.room, "room", "r", "", "Room name")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Display name (default: saved name)")
	cmd.Flags().BoolVar(&opts.muted, "muted", false, "Join with the microphone off")
	cmd.Flags().BoolVar(&opts.cameraOff, "camera-off", false, "Join with the camera off")
	cmd.Flags().StringVar(&opts.view, "view", "", "Layout: grid, speaker or gallery")
	cmd.Flags().StringVar(&opts.mic, "mic", "", "Microphone device id")
	cmd.Flags().StringVar(&opts.camera, "camera", "", "Camera device id")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Remember name, devices and layout for next time")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}

// merge fills unset flags from saved preferences.
func (o joinOptions) merge(s settings.Settings, flags interface{ Changed(string) bool }) joinOptions {
	if o.name == "" {
		o.name = s.DisplayName
	}
	if o.view == "" {
		o.view = string(s.ViewMode)
	}
	if o.mic == "" {
		o.mic = s.AudioDevice
	}
	if o.camera == "" {
		o.camera = s.VideoDevice
	}
	if !flags.Changed("muted") {
		o.muted = s.StartMuted
	}
	if !flags.Changed("camera-off") {
		o.cameraOff = s.StartCameraOff
	}
	return o
}

func runJoin(cmd *cobra.Command, deps *Dependencies, opts joinOptions) error {
	opts = opts.merge(deps.Settings, cmd.Flags())
	if opts.name == "" {
		return errors.New("--name is required when no display name is saved")
	}
	view := domain.ViewGrid
	if opts.view != "" {
		v, err := domain.ParseViewMode(opts.view)
		if err != nil {
			return err
		}
		view = v
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := deps.Config
	grant, err := token.NewClient(cfg.TokenURL, nil).Fetch(ctx, opts.room, opts.name)
	if err != nil {
		return err
	}
	catalog, err := media.NewCatalog("huddle-"+string(grant.ParticipantID), cfg.Devices)
	if err != nil {
		return err
	}

	out := NewRenderer(cmd.OutOrStdout())
	lost := make(chan error, 1)
	eng := mesh.New(mesh.Options{
		ICE:            rtc.DefaultConfig(cfg.ICEServers),
		RequestTimeout: cfg.RequestTimeout,
		LevelInterval:  levelInterval,
	})
	ctl := session.NewController(session.Options{
		Engine:           eng,
		Devices:          catalog,
		SpeakerSmoothing: cfg.SpeakerSmoothing,
		Callbacks: session.Callbacks{
			OnRosterChanged: out.Render,
			OnChat:          out.Chat,
			OnStateChanged: func(s domain.ConnectionState) {
				log.Debug().Str("module", "cli").Str("state", string(s)).Msg("state")
				if s.Terminal() {
					out.Status("call " + string(s))
				}
			},
			OnDisconnected: func(err error) { lost <- err },
		},
	})
	ctl.SetViewMode(view)

	err = ctl.Join(ctx, session.JoinRequest{
		Address:     cfg.ServerURL,
		Credential:  grant.Token,
		DisplayName: opts.name,
		Devices: session.DeviceSelection{
			Audio: opts.mic,
			Video: opts.camera,
		},
		StartMuted:           opts.muted,
		StartCameraOff:       opts.cameraOff,
		ContinueWithoutMedia: true,
	})
	if err != nil {
		return err
	}
	out.Status(fmt.Sprintf("joined %s as %s, type h for help", grant.Room, opts.name))

	err = interact(ctx, cmd.InOrStdin(), ctl, eng, out, lost)
	ctl.Leave()

	if opts.save {
		s := deps.Settings
		s.DisplayName = opts.name
		s.ViewMode = ctl.Snapshot().ViewMode
		s.AudioDevice = opts.mic
		s.VideoDevice = opts.camera
		s.StartMuted = opts.muted
		s.StartCameraOff = opts.cameraOff
		if serr := settings.Save(deps.SettingsPath, s); serr != nil {
			log.Warn().Err(serr).Str("module", "cli").Msg("save settings")
		}
	}
	return err
}

// interact reads commands until the user quits, stdin ends, the context is cancelled or the call drops.
func interact(ctx context.Context, in io.Reader, call Call, chat ChatSender, out *Renderer, lost <-chan error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-lost:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			reply, err := Exec(ctx, line, call, chat)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				out.Error(err)
				continue
			}
			if reply != "" {
				out.Status(reply)
			}
		}
	}
}
