package statuscheck

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gen2brain/go-fitz"
)

// Pinger models the minimal capability we need for dependency checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates readiness checks for optional dependencies.
type Checker struct {
	redis     Pinger
	s3        Pinger
	exportDir string
}

// Options configures the Checker. Nil pingers mean the dependency is
// disabled, which does not count against readiness.
type Options struct {
	Redis     Pinger
	S3        Pinger
	ExportDir string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Ready     bool   `json:"ready"`
	Redis     Status `json:"redis"`
	S3        Status `json:"s3"`
	ExportDir Status `json:"export_dir"`
	MuPDF     Status `json:"mupdf"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, s3: opts.S3, exportDir: opts.ExportDir}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{
		Redis:     c.ping(ctx, c.redis, 2*time.Second),
		S3:        c.ping(ctx, c.s3, 5*time.Second),
		ExportDir: c.checkDir(),
		MuPDF:     Status{OK: true, Message: "embedded " + fitz.FzVersion},
	}
	s.Ready = s.Redis.OK && s.S3.OK && s.ExportDir.OK && s.MuPDF.OK
	return s
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: true, Message: "disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkDir() Status {
	if c.exportDir == "" {
		return Status{OK: true, Message: "disabled"}
	}
	if err := os.MkdirAll(c.exportDir, 0o755); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	f, err := os.CreateTemp(c.exportDir, ".ready-*")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	f.Close()
	os.Remove(f.Name())
	return Status{OK: true, Message: "Writable"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
