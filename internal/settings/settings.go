// Package settings persists the participant's own preferences between calls.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

type Settings struct {
	DisplayName    string          `toml:"display_name"`
	ViewMode       domain.ViewMode `toml:"view_mode"`
	AudioDevice    string          `toml:"audio_device"`
	VideoDevice    string          `toml:"video_device"`
	StartMuted     bool            `toml:"start_muted"`
	StartCameraOff bool            `toml:"start_camera_off"`
}

func Default() Settings {
	return Settings{ViewMode: domain.ViewGrid}
}

// DefaultPath is $XDG_CONFIG_HOME/huddle/settings.toml, falling back to the OS config directory.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "huddle", "settings.toml"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "huddle", "settings.toml"), nil
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if _, err := toml.DecodeFile(path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("read settings %s: %w", path, err)
	}
	mode, err := domain.ParseViewMode(string(s.ViewMode))
	if err != nil {
		log.Warn().Str("module", "settings").Str("view_mode", string(s.ViewMode)).Msg("unknown view mode, using grid")
		mode = domain.ViewGrid
	}
	s.ViewMode = mode
	return s, nil
}

// Save writes s to path atomically, creating the directory if needed.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(s); err != nil {
		tmp.Close()
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	log.Debug().Str("module", "settings").Str("file", path).Msg("settings saved")
	return nil
}
