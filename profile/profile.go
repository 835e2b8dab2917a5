// Package profile loads per-action guard settings from TOML files and
// applies them to a pipeline engine, with optional hot reload.
package profile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/actionpipe/pipeline"
	"github.com/dshills/actionpipe/pipeline/guard"
)

// Profile errors.
var (
	// ErrNegativeDuration indicates a negative debounce or throttle value.
	ErrNegativeDuration = errors.New("profile: durations must not be negative")
)

// Document is the root of a guard profile file.
//
// Example:
//
//	[actions."search.query"]
//	debounce_ms = 150
//
//	[actions."viewport.scroll".throttle]
//	interval_ms = 100
//	leading = true
//	trailing = true
//
//	[actions."payment.submit"]
//	blocked = true
//	block_reason = "maintenance"
type Document struct {
	Actions map[string]Action `toml:"actions"`
}

// Action holds the guard settings for one action key.
type Action struct {
	// DebounceMS is the debounce delay in milliseconds; zero disables it.
	DebounceMS int64 `toml:"debounce_ms"`

	// Throttle configures the throttle window.
	Throttle Throttle `toml:"throttle"`

	// Blocked applies a manual block when the profile is applied.
	Blocked bool `toml:"blocked"`

	// BlockReason is the reason reported for the manual block.
	BlockReason string `toml:"block_reason"`
}

// Throttle is the TOML form of a throttle window.
type Throttle struct {
	IntervalMS int64 `toml:"interval_ms"`
	Leading    bool  `toml:"leading"`
	Trailing   bool  `toml:"trailing"`
}

// ParseError reports a malformed profile file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("profile: parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads a profile from path. A missing file is not an error; it
// returns a nil document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("profile: reading %s: %w", path, err)
	}
	return parse(path, data)
}

// Parse decodes a profile from raw TOML.
func Parse(data []byte) (*Document, error) {
	return parse("<data>", data)
}

func parse(source string, data []byte) (*Document, error) {
	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) validate() error {
	for key, action := range d.Actions {
		if action.DebounceMS < 0 || action.Throttle.IntervalMS < 0 {
			return fmt.Errorf("profile: action %q: %w", key, ErrNegativeDuration)
		}
	}
	return nil
}

// Spec converts an action's profile settings to a guard spec.
func (a Action) Spec() guard.Spec {
	return guard.Spec{
		Debounce: time.Duration(a.DebounceMS) * time.Millisecond,
		Throttle: guard.ThrottleSpec{
			Interval: time.Duration(a.Throttle.IntervalMS) * time.Millisecond,
			Leading:  a.Throttle.Leading,
			Trailing: a.Throttle.Trailing,
		},
	}
}

// Apply configures the engine's guards from the document. Keys absent from
// the document keep their current guard configuration. A key present in the
// document owns its manual block state: blocked = false lifts a block a
// previous apply set, so a profile edit can both impose and clear blocks.
func (d *Document) Apply(eng *pipeline.Engine) error {
	if d == nil {
		return nil
	}
	for key, action := range d.Actions {
		if err := eng.ConfigureGuard(key, action.Spec()); err != nil {
			return fmt.Errorf("profile: action %q: %w", key, err)
		}
		if action.Blocked {
			eng.Block(key, action.BlockReason)
		} else {
			eng.Unblock(key)
		}
	}
	return nil
}
