package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/netfleet-core/internal/event"
)

// Configuration bounds.
const (
	// MinDuplicateWindow is the shortest dedup window accepted.
	MinDuplicateWindow = 2 * time.Minute

	// DefaultLoadTimeout applies to Load when ctx has no deadline.
	DefaultLoadTimeout = 5 * time.Second

	maxReplicas = 5
)

// URL schemes.
const (
	SchemeSQLite = "sqlite://"
	SchemeMemory = "memory://"
)

// Config describes one logical stream.
type Config struct {
	// URL selects the backend: sqlite://<path> or memory://.
	URL string
	// StreamName identifies the stream inside the backend.
	StreamName string
	// SubjectPrefix is the first subject token; alphanumeric or dashes.
	SubjectPrefix string
	// MaxMessages keeps at most this many events. Zero is unlimited.
	MaxMessages int64
	// MaxAge drops events older than this. Zero is unlimited.
	MaxAge time.Duration
	// Replicas is the copy count requested of a clustered substrate.
	// Single-node backends accept and ignore it.
	Replicas int
	// DuplicateWindow is how long message ids are remembered.
	DuplicateWindow time.Duration
}

// DefaultConfig returns an in-memory stream named "netfleet".
func DefaultConfig() Config {
	return Config{
		URL:             SchemeMemory,
		StreamName:      "NETFLEET",
		SubjectPrefix:   "netfleet",
		Replicas:        1,
		DuplicateWindow: MinDuplicateWindow,
	}
}

func (c Config) withDefaults() Config {
	if c.Replicas == 0 {
		c.Replicas = 1
	}
	if c.DuplicateWindow == 0 {
		c.DuplicateWindow = MinDuplicateWindow
	}
	return c
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	c = c.withDefaults()
	var errs []string

	if !strings.HasPrefix(c.URL, SchemeSQLite) && c.URL != SchemeMemory {
		errs = append(errs, fmt.Sprintf("url %q must be sqlite://<path> or memory://", c.URL))
	}
	if c.URL != SchemeMemory && strings.TrimPrefix(c.URL, SchemeSQLite) == "" {
		errs = append(errs, "sqlite url needs a path")
	}
	if strings.TrimSpace(c.StreamName) == "" {
		errs = append(errs, "stream_name is required")
	}
	if err := event.ValidatePrefix(c.SubjectPrefix); err != nil {
		errs = append(errs, err.Error())
	}
	if c.MaxMessages < 0 {
		errs = append(errs, "max_messages must not be negative")
	}
	if c.MaxAge < 0 {
		errs = append(errs, "max_age must not be negative")
	}
	if c.Replicas < 1 || c.Replicas > maxReplicas {
		errs = append(errs, fmt.Sprintf("replicas must be between 1 and %d", maxReplicas))
	}
	if c.DuplicateWindow < MinDuplicateWindow {
		errs = append(errs, fmt.Sprintf("duplicate_window must be at least %s", MinDuplicateWindow))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
