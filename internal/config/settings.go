package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	yaml "gopkg.in/yaml.v3"
)

const settingsFile = "chessplay/settings.yaml"

// PlayerSettings are the terminal client's remembered game choices.
type PlayerSettings struct {
	Side       string `yaml:"side"`
	Difficulty string `yaml:"difficulty,omitempty"`
	Strength   int    `yaml:"strength,omitempty"`
}

// SettingsPath resolves the settings file under the XDG config home,
// creating parent directories as needed.
func SettingsPath() (string, error) {
	return xdg.ConfigFile(settingsFile)
}

// LoadSettings reads path; a missing file yields zero settings.
func LoadSettings(path string) (PlayerSettings, error) {
	var s PlayerSettings
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return PlayerSettings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

func SaveSettings(path string, s PlayerSettings) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
