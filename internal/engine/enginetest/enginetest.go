// Package enginetest provides a scriptable in-memory engine and device source for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

// Track is an in-memory domain.Track.
type Track struct {
	id      string
	kind    domain.Kind
	device  string
	stopped atomic.Bool
}

func NewTrack(id string, kind domain.Kind) *Track {
	return &Track{id: id, kind: kind}
}

func NewDeviceTrack(id string, kind domain.Kind, device string) *Track {
	return &Track{id: id, kind: kind, device: device}
}

func (t *Track) ID() string { return t.id }
func (t *Track) Kind() domain.Kind { return t.kind }
func (t *Track) DeviceID() string { return t.device }
func (t *Track) Stop() { t.stopped.Store(true) }
func (t *Track) Stopped() bool { return t.stopped.Load() }
func (t *Track) String() string { return fmt.Sprintf("%s/%s", t.kind, t.id) }

// Call records one command received by Engine.
type Call struct {
	Op      string
	Kind    domain.Kind
	TrackID string
}

// Engine records commands and lets tests inject events and failures.
type Engine struct {
	mu        sync.Mutex
	events    chan engine.Event
	closed    bool
	calls     []Call
	failures  map[string]error
	published map[domain.Kind]domain.Track

	Welcome    engine.Welcome
	ConnectErr error
	// ConnectGate, when set, blocks Connect until it is closed or ctx ends.
	ConnectGate chan struct{}
	// IgnoreContext makes a gated Connect wait for the gate even after ctx ends,
	// like a transport that completes a handshake it can no longer abort.
	IgnoreContext bool
	// ReplaceGate, when set, blocks ReplaceTrack after it is recorded until the gate closes or ctx ends.
	ReplaceGate chan struct{}
}

func New() *Engine {
	return &Engine{
		events:    make(chan engine.Event, 64),
		failures:  make(map[string]error),
		published: make(map[domain.Kind]domain.Track),
	}
}

func (e *Engine) Events() <-chan engine.Event { return e.events }

// Emit delivers an event as if it came from the network.
func (e *Engine) Emit(ev engine.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.events <- ev
}

// FailNext makes the next call of op return err.
func (e *Engine) FailNext(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = err
}

func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsOf filters recorded calls by operation name.
func (e *Engine) CallsOf(op string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) Published(kind domain.Kind) domain.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.published[kind]
}

func (e *Engine) record(op string, kind domain.Kind, t domain.Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := Call{Op: op, Kind: kind}
	if t != nil {
		c.TrackID = t.ID()
	}
	e.calls = append(e.calls, c)
	if err, ok := e.failures[op]; ok {
		delete(e.failures, op)
		return err
	}
	return nil
}

func (e *Engine) Connect(ctx context.Context, address, credential string) (engine.Welcome, error) {
	if err := e.record("connect", "", nil); err != nil {
		return engine.Welcome{}, err
	}
	if e.ConnectGate != nil && e.IgnoreContext {
		<-e.ConnectGate
	} else if e.ConnectGate != nil {
		select {
		case <-e.ConnectGate:
		case <-ctx.Done():
			return engine.Welcome{}, ctx.Err()
		}
	}
	return e.Welcome, e.ConnectErr
}

func (e *Engine) Publish(_ context.Context, kind domain.Kind, t domain.Track) error {
	if err := e.record("publish", kind, t); err != nil {
		return err
	}
	e.mu.Lock()
	e.published[kind] = t
	e.mu.Unlock()
	return nil
}

func (e *Engine) Unpublish(_ context.Context, kind domain.Kind) error {
	if err := e.record("unpublish", kind, nil); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.published, kind)
	e.mu.Unlock()
	return nil
}

func (e *Engine) Pause(_ context.Context, kind domain.Kind) error {
	return e.record("pause", kind, nil)
}

func (e *Engine) Resume(_ context.Context, kind domain.Kind) error {
	return e.record("resume", kind, nil)
}

func (e *Engine) ReplaceTrack(ctx context.Context, kind domain.Kind, t domain.Track) error {
	if err := e.record("replace", kind, t); err != nil {
		return err
	}
	if e.ReplaceGate != nil {
		select {
		case <-e.ReplaceGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	e.published[kind] = t
	e.mu.Unlock()
	return nil
}

func (e *Engine) Disconnect() error {
	err := e.record("disconnect", "", nil)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return err
}

// Devices hands out Tracks for any device id unless told otherwise.
type Devices struct {
	mu       sync.Mutex
	seq      int
	failures map[string]error
	gates    map[string]chan struct{}
	acquired []*Track
}

func NewDevices() *Devices {
	return &Devices{failures: make(map[string]error), gates: make(map[string]chan struct{})}
}

// Fail makes every acquisition of deviceID return err.
func (d *Devices) Fail(deviceID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[deviceID] = err
}

// Gate blocks acquisitions of deviceID until the returned func is called.
func (d *Devices) Gate(deviceID string) (release func()) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.gates[deviceID] = ch
	d.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (d *Devices) Acquired() []*Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Track(nil), d.acquired...)
}

func (d *Devices) Acquire(ctx context.Context, kind domain.Kind, deviceID string) (domain.Track, error) {
	d.mu.Lock()
	gate := d.gates[deviceID]
	err := d.failures[deviceID]
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if deviceID == "" {
		deviceID = "default-" + string(kind)
	}
	t := NewDeviceTrack(fmt.Sprintf("local-%s-%d", kind, d.seq), kind, deviceID)
	d.acquired = append(d.acquired, t)
	return t, nil
}
