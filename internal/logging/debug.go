package logging

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Debugger gates debug output per site. Sites are short component names
// such as "transport" or "relay". It is disabled until configured.
type Debugger struct {
	mu      sync.RWMutex
	logger  zerolog.Logger
	all     bool
	enabled map[string]bool
}

// NewDebugger returns a Debugger writing through logger.
func NewDebugger(logger zerolog.Logger) *Debugger {
	return &Debugger{logger: logger, enabled: make(map[string]bool)}
}

// Configure applies filter specs in order:
//
//	"*" or "all"       enable every site
//	"off" or "none"    disable everything
//	"site", "@site"    enable one site
//	"-site"            disable one site
//
// Empty specs are ignored.
func (d *Debugger) Configure(specs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, raw := range specs {
		spec := strings.TrimSpace(raw)
		switch {
		case spec == "":
		case spec == "*" || spec == "all":
			d.all = true
		case spec == "off" || spec == "none":
			d.all = false
			d.enabled = make(map[string]bool)
		case strings.HasPrefix(spec, "-"):
			d.enabled[strings.TrimPrefix(spec, "-")] = false
		default:
			d.enabled[strings.TrimPrefix(spec, "@")] = true
		}
	}
}

// Enabled reports whether debug output for site is on.
func (d *Debugger) Enabled(site string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if on, ok := d.enabled[site]; ok {
		return on
	}
	return d.all
}

// Site starts a debug event for site, or returns nil when the site is off.
// zerolog treats a nil event as a no-op, so callers chain unconditionally.
func (d *Debugger) Site(site string) *zerolog.Event {
	if d == nil || !d.Enabled(site) {
		return nil
	}
	l := d.logger.Level(zerolog.DebugLevel)
	return l.Debug().Str("site", site)
}
