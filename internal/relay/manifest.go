package relay

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go-appfw/internal/core"
)

// Manifest lists the applications installed on the system.
//
//	applications:
//	  - appid: org.example.clock
//	    description: Wall clock
//	    desktop: clock.desktop
//	    argv: [clock, --fullscreen]
type Manifest struct {
	Applications []core.AppInfo `yaml:"applications"`
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Applications))
	for i, app := range m.Applications {
		if app.AppID == "" {
			return nil, fmt.Errorf("application %d: missing appid", i)
		}
		if seen[app.AppID] {
			return nil, fmt.Errorf("application %s: listed twice", app.AppID)
		}
		seen[app.AppID] = true
	}
	return &m, nil
}

// Seed installs every application of the manifest into store.
func (m *Manifest) Seed(ctx context.Context, store AppStore) error {
	for _, app := range m.Applications {
		if _, err := store.Put(ctx, app); err != nil {
			return fmt.Errorf("install %s: %w", app.AppID, err)
		}
	}
	return nil
}
