package registry

import (
	"io"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/keepstate/internal/merge"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// Copier performs the in-place structural merge applied during recovery.
type Copier interface {
	CopyInto(dst, src any) error
}

// CopierFunc adapts a function to Copier.
type CopierFunc func(dst, src any) error

// CopyInto implements Copier.
func (f CopierFunc) CopyInto(dst, src any) error {
	return f(dst, src)
}

// DefaultCopier deep-copies src into dst preserving dst's identity.
var DefaultCopier Copier = CopierFunc(merge.Into)

// Option configures a Registry.
type Option func(*config)

type config struct {
	namespace string
	now       func() time.Time
	logger    *slog.Logger
	copier    Copier
}

func applyOptions(opts []Option) config {
	cfg := config{
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		copier: DefaultCopier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithNamespace derives the key prefix from an application identifier:
// appID + "." or nothing when appID is empty.
func WithNamespace(appID string) Option {
	return func(cfg *config) {
		cfg.namespace = types.NamespaceFor(appID)
	}
}

// WithClock replaces time.Now for expiration stamping and checks.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithLogger attaches a structured logger. A nil logger keeps the discard
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithCopier replaces the structural merge used during recovery.
func WithCopier(c Copier) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.copier = c
		}
	}
}
