// Package session drives one participant through a call: join, local media commands, remote events and leave.
//
// The Controller owns the connection state machine and every local track. Remote state lives in the
// roster store and is only changed by engine events, which are applied one at a time in arrival order.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/roster"
	"github.com/dkeye/Huddle/internal/speaker"
)

// Devices acquires local capture tracks. An empty deviceID means the system default.
type Devices interface {
	Acquire(ctx context.Context, kind domain.Kind, deviceID string) (domain.Track, error)
}

// DeviceSelection names the capture device per kind; empty means default.
type DeviceSelection struct {
	Audio string
	Video string
}

func (d DeviceSelection) For(kind domain.Kind) string {
	if kind == domain.KindVideo {
		return d.Video
	}
	return d.Audio
}

func (d *DeviceSelection) set(kind domain.Kind, id string) {
	if kind == domain.KindVideo {
		d.Video = id
		return
	}
	d.Audio = id
}

type JoinRequest struct {
	Address     string
	Credential  string
	DisplayName string
	Devices     DeviceSelection

	StartMuted     bool
	StartCameraOff bool
	// ContinueWithoutMedia joins with whatever could be acquired instead of failing the join.
	ContinueWithoutMedia bool
}

// Callbacks are invoked in order on a dedicated goroutine. They may call back into the Controller.
type Callbacks struct {
	OnRosterChanged func(domain.RoomSnapshot)
	OnStateChanged  func(domain.ConnectionState)
	// OnDisconnected fires at most once, when the transport drops an active session.
	OnDisconnected func(error)
	OnChat         func(engine.ChatReceived)
}

type Options struct {
	Engine  engine.Engine
	Devices Devices
	// Sources are extra event streams, such as a signaling side-channel, merged with the engine's.
	Sources   []engine.EventSource
	Callbacks Callbacks
	// SpeakerSmoothing is how many consecutive reports a new loudest speaker must top. Zero means one.
	SpeakerSmoothing int
}

type Controller struct {
	engine   engine.Engine
	devices  Devices
	sources  []engine.EventSource
	cb       Callbacks
	roster   *roster.Store
	speakers *speaker.Tracker
	notify   *notifier

	// evMu makes an event's validity check and its application atomic with respect to teardown.
	evMu sync.Mutex

	mu         sync.Mutex
	state      domain.ConnectionState
	gen        uint64
	cancelJoin context.CancelFunc
	stopPumps  context.CancelFunc
	local      map[domain.Kind]domain.Track
	selection  DeviceSelection
	switches   map[domain.Kind]*switchOp

	// cmdMu serializes local media commands so the engine sees them in the order they were issued.
	cmdMu sync.Mutex

	disconnectOnce sync.Once
}

func NewController(opts Options) *Controller {
	store := roster.New()
	c := &Controller{
		engine:   opts.Engine,
		devices:  opts.Devices,
		sources:  opts.Sources,
		cb:       opts.Callbacks,
		roster:   store,
		speakers: speaker.NewTracker(store, opts.SpeakerSmoothing),
		notify:   newNotifier(),
		state:    domain.StateIdle,
		local:    make(map[domain.Kind]domain.Track),
		switches: make(map[domain.Kind]*switchOp),
	}
	store.OnChange(func(snap domain.RoomSnapshot) {
		if fn := c.cb.OnRosterChanged; fn != nil {
			c.notify.post(func() { fn(snap) })
		}
	})
	return c
}

func (c *Controller) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current room session.
func (c *Controller) Snapshot() domain.RoomSnapshot {
	return c.roster.Snapshot()
}

// SetViewMode is a pure presentation choice and is accepted in any state.
func (c *Controller) SetViewMode(mode domain.ViewMode) {
	c.roster.SetViewMode(mode)
}

func (c *Controller) Leave() {
	c.mu.Lock()
	switch c.state {
	case domain.StateLeaving, domain.StateDisconnected, domain.StateFailed:
		c.mu.Unlock()
		return
	case domain.StateIdle:
		c.gen++
		c.state = domain.StateDisconnected
		c.mu.Unlock()
		c.publishState(domain.StateDisconnected)
		c.notify.close()
		return
	}
	c.gen++
	cancel := c.cancelJoin
	tracks := c.takeLocalLocked()
	c.state = domain.StateLeaving
	c.mu.Unlock()

	log.Info().Str("module", "session").Msg("leaving")
	c.publishState(domain.StateLeaving)
	if cancel != nil {
		cancel()
	}
	c.teardown(tracks)
	c.finish(domain.StateDisconnected)
}

// valid reports whether work started under gen may still touch session state.
func (c *Controller) valid(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller) activeGen() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, c.state == domain.StateActive
}

// transition moves from one state to another if gen is still current.
func (c *Controller) transition(gen uint64, from, to domain.ConnectionState) bool {
	c.mu.Lock()
	if gen != c.gen || c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.publishState(to)
	return true
}

func (c *Controller) publishState(state domain.ConnectionState) {
	c.roster.SetConnectionState(state)
	if fn := c.cb.OnStateChanged; fn != nil {
		c.notify.post(func() { fn(state) })
	}
}

func (c *Controller) takeLocalLocked() map[domain.Kind]domain.Track {
	tracks := c.local
	c.local = make(map[domain.Kind]domain.Track)
	return tracks
}

func (c *Controller) localTrack(kind domain.Kind) domain.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local[kind]
}

// teardown releases everything a session holds. The caller has already invalidated the generation.
func (c *Controller) teardown(tracks map[domain.Kind]domain.Track) {
	c.mu.Lock()
	stop := c.stopPumps
	c.stopPumps = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
	if err := c.engine.Disconnect(); err != nil {
		log.Warn().Str("module", "session").Err(err).Msg("engine disconnect")
	}
	for _, t := range tracks {
		t.Stop()
	}
	c.evMu.Lock()
	c.roster.Reset()
	c.evMu.Unlock()
}

// finish enters a terminal state and lets the callback goroutine drain.
func (c *Controller) finish(state domain.ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.publishState(state)
	c.notify.close()
}

// fail aborts a join attempt that is still current.
func (c *Controller) fail(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	tracks := c.takeLocalLocked()
	c.mu.Unlock()

	log.Error().Str("module", "session").Err(cause).Msg("join failed")
	c.teardown(tracks)
	c.finish(domain.StateFailed)
}

// onRemoteDisconnect handles the transport going away underneath the session.
func (c *Controller) onRemoteDisconnect(gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case domain.StateConnecting, domain.StateJoining:
		// the join in flight observes the cancellation and fails itself
		cancel := c.cancelJoin
		c.mu.Unlock()
		log.Warn().Str("module", "session").Str("reason", reason).Msg("transport lost while joining")
		if cancel != nil {
			cancel()
		}
		return
	case domain.StateActive:
	default:
		c.mu.Unlock()
		return
	}
	c.gen++
	tracks := c.takeLocalLocked()
	c.state = domain.StateLeaving
	c.mu.Unlock()

	log.Warn().Str("module", "session").Str("reason", reason).Msg("transport lost")
	c.publishState(domain.StateLeaving)
	c.teardown(tracks)

	err := newError(ErrDisconnected, "session", errorString(reason))
	c.disconnectOnce.Do(func() {
		if fn := c.cb.OnDisconnected; fn != nil {
			c.notify.post(func() { fn(err) })
		}
	})
	c.finish(domain.StateDisconnected)
}

type errorString string

func (e errorString) Error() string { return string(e) }

// startPumps merges the engine's events with every extra source into one queue consumed by a
// single goroutine, so reducers see events one at a time in arrival order.
func (c *Controller) startPumps(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.stopPumps = cancel
	c.mu.Unlock()

	queue := make(chan engine.Event, 64)
	forward := func(src <-chan engine.Event, primary bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src:
				if !ok {
					if primary {
						c.onRemoteDisconnect(gen, "event stream closed")
					}
					return
				}
				select {
				case queue <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
	go forward(c.engine.Events(), true)
	for _, src := range c.sources {
		go forward(src.Events(), false)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-queue:
				c.handleEvent(gen, ev)
			}
		}
	}()
}

func (c *Controller) handleEvent(gen uint64, ev engine.Event) {
	if d, ok := ev.(engine.Disconnected); ok {
		c.onRemoteDisconnect(gen, d.Reason)
		return
	}

	c.evMu.Lock()
	defer c.evMu.Unlock()
	if !c.valid(gen) {
		return
	}
	switch e := ev.(type) {
	case engine.ActiveSpeakersChanged:
		c.speakers.Observe(e.Ranked)
	case engine.ChatReceived:
		if fn := c.cb.OnChat; fn != nil {
			c.notify.post(func() { fn(e) })
		}
	default:
		c.roster.Apply(ev)
	}
}
