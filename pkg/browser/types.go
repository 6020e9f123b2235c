package browser

import (
	"errors"
	"time"
)

var (
	// ErrPoolClosed is returned by Acquire after Shutdown.
	ErrPoolClosed = errors.New("browser pool is closed")

	// ErrNotInitialized is returned when the shared browser went away between
	// initialization and session creation.
	ErrNotInitialized = errors.New("browser not initialized")
)

// Options configures the shared browser and the session pool.
type Options struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool `yaml:"headless" json:"headless"`

	// MaxSessions bounds the number of concurrently held sessions
	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`

	// Viewport dimensions for new sessions
	ViewportWidth  int `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height" json:"viewport_height"`

	// UserAgent overrides the browser user agent when set
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// InstallDriver downloads the playwright driver and browsers on launch
	InstallDriver bool `yaml:"install_driver" json:"install_driver"`

	// DefaultTimeout applies to page operations that carry no deadline
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`
}

// Default values for the shared browser
const (
	DefaultMaxSessions    = 5
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultTimeout        = 30 * time.Second
)

// DefaultOptions returns headless settings with five concurrent sessions.
func DefaultOptions() Options {
	return Options{
		Headless:       true,
		MaxSessions:    DefaultMaxSessions,
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
		InstallDriver:  true,
		DefaultTimeout: DefaultTimeout,
	}
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Limit       int
	InUse       int
	Initialized bool
	Closed      bool
}
