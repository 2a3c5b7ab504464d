// Package media hands out local capture tracks for the devices listed in the client configuration.
//
// A device is exclusive: it can back at most one live track, and stopping the track releases it.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrNoDevice      = errors.New("no device of this kind")
	ErrDeviceBusy    = errors.New("device already in use")
	ErrKindMismatch  = errors.New("device kind mismatch")
)

type Device struct {
	ID    string
	Label string
	Kind  domain.Kind
}

type Catalog struct {
	streamID string
	devices  []Device

	mu      sync.Mutex
	claimed map[string]*LocalTrack
}

func NewCatalog(streamID string, devices []config.DeviceConfig) (*Catalog, error) {
	c := &Catalog{streamID: streamID, claimed: make(map[string]*LocalTrack)}
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		kind, err := domain.ParseKind(d.Kind)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.ID, err)
		}
		if d.ID == "" {
			return nil, fmt.Errorf("device %q: empty id", d.Label)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("device %q listed twice", d.ID)
		}
		seen[d.ID] = struct{}{}
		label := d.Label
		if label == "" {
			label = d.ID
		}
		c.devices = append(c.devices, Device{ID: d.ID, Label: label, Kind: kind})
	}
	return c, nil
}

// Devices lists configured devices of kind in configuration order.
func (c *Catalog) Devices(kind domain.Kind) []Device {
	var out []Device
	for _, d := range c.devices {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// InUse reports whether deviceID currently backs a live track.
func (c *Catalog) InUse(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.claimed[deviceID]
	return ok
}

func (c *Catalog) lookup(kind domain.Kind, deviceID string) (Device, error) {
	if deviceID == "" {
		for _, d := range c.devices {
			if d.Kind == kind {
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("%w: %s", ErrNoDevice, kind)
	}
	for _, d := range c.devices {
		if d.ID != deviceID {
			continue
		}
		if d.Kind != kind {
			return Device{}, fmt.Errorf("%w: %s is %s", ErrKindMismatch, deviceID, d.Kind)
		}
		return d, nil
	}
	return Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
}

// Acquire opens deviceID, or the first device of kind when deviceID is empty.
func (c *Catalog) Acquire(ctx context.Context, kind domain.Kind, deviceID string) (domain.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev, err := c.lookup(kind, deviceID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.claimed[dev.ID]; busy {
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, dev.ID)
	}
	t, err := newLocalTrack(dev, c.streamID, c.release)
	if err != nil {
		return nil, err
	}
	c.claimed[dev.ID] = t
	log.Info().Str("module", "media").Str("device", dev.ID).Str("kind", string(kind)).Str("track", t.ID()).Msg("device acquired")
	return t, nil
}

func (c *Catalog) release(t *LocalTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[t.DeviceID()] == t {
		delete(c.claimed, t.DeviceID())
		log.Info().Str("module", "media").Str("device", t.DeviceID()).Msg("device released")
	}
}
