package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultListen is the RC bind host used when the players file omits one.
const DefaultListen = "127.0.0.1"

// Players is the players file: how to launch the player binary and one
// argument template per instance.
type Players struct {
	VLC       VLC      `yaml:"vlc"`
	Instances []string `yaml:"instances"`
}

// VLC describes the player binary and its RC interface.
type VLC struct {
	Binary    string `yaml:"binary"`
	Listen    string `yaml:"listen"`
	StartPort int    `yaml:"start_port"`
	// RCVerbose drops --rc-quiet so the player echoes its RC console.
	RCVerbose bool `yaml:"rc_verbose"`
}

// LoadPlayers reads and validates a YAML players file.
func LoadPlayers(path string) (*Players, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read players file: %w", err)
	}
	return ParsePlayers(data)
}

// ParsePlayers parses and validates players file contents.
func ParsePlayers(data []byte) (*Players, error) {
	var p Players
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse players file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid players file: %w", err)
	}
	return &p, nil
}

// Validate checks the players file and fills defaults.
func (p *Players) Validate() error {
	if p.VLC.Binary == "" {
		return errors.New("vlc.binary is required")
	}
	if p.VLC.Listen == "" {
		p.VLC.Listen = DefaultListen
	}
	if p.VLC.StartPort < 1 || p.VLC.StartPort > 65535 {
		return fmt.Errorf("vlc.start_port must be in 1..65535, got %d", p.VLC.StartPort)
	}
	if len(p.Instances) == 0 {
		return errors.New("at least one instance is required")
	}
	if last := p.VLC.StartPort + len(p.Instances) - 1; last > 65535 {
		return fmt.Errorf("%d instances from port %d exceed port 65535", len(p.Instances), p.VLC.StartPort)
	}
	return nil
}
