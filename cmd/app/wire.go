package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/partkit/internal/artifact"
	cfgpkg "github.com/local/partkit/internal/config"
	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/filetype"
	"github.com/local/partkit/internal/pagetext"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segmenter"
	"github.com/local/partkit/internal/session"
	"github.com/local/partkit/internal/statuscheck"
	"github.com/local/partkit/internal/storage"
	"github.com/local/partkit/internal/store"
)

// components holds the long-lived collaborators shared by every command.
// Pages and S3 are nil when their backing service is not configured.
type components struct {
	cfg      cfgpkg.Config
	engine   *pdfdoc.Pdfcpu
	detector *filetype.Detector
	pages    *store.PageStore
	s3       *storage.S3Client
	seg      *segmenter.Segmenter
	regen    *artifact.Regenerator
}

func newComponents(ctx context.Context, cfg cfgpkg.Config) (*components, error) {
	c := &components{
		cfg:      cfg,
		engine:   pdfdoc.NewPdfcpu(),
		detector: filetype.NewLimited(cfg.Server.MaxUploadBytes),
	}

	if cfg.Cache.RedisURL != "" {
		ps, err := store.NewPageStore(cfg.Cache.RedisURL, cfg.Cache.PageTextTTL)
		if err != nil {
			return nil, fmt.Errorf("init page text cache: %w", err)
		}
		c.pages = ps
	}

	if cfg.S3.Bucket != "" {
		s3c, err := storage.NewS3Client(ctx, cfg.S3.Bucket, cfg.S3.UploadAttempts)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init s3 client: %w", err)
		}
		c.s3 = s3c
	}

	dict, err := segmenter.LoadDictionary(cfg.Segmenter.InstrumentsFile)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.seg = segmenter.New(dict, c.texts(), cfg.Segmenter.HeaderChars)
	c.regen = artifact.NewRegenerator(c.engine, cfg.Render.ArtifactCacheEntries)

	log.Debug().Bool("redis", c.pages != nil).Bool("s3", c.s3 != nil).
		Int("instruments", len(dict.Instruments)).Msg("components ready")
	return c, nil
}

func (c *components) texts() pagetext.Extractor {
	var ex pagetext.Extractor = pagetext.Fallback{pagetext.NewFitz(), pagetext.Plain{}}
	if c.pages != nil {
		ex = pagetext.Cached{Cache: c.pages, Next: ex}
	}
	return ex
}

func (c *components) manager() *session.Manager {
	return session.NewManager(c.detector, c.engine, c.seg, c.regen, c.cfg.Server.SessionIdleTTL)
}

// fetcher resolves source refs. Filesystem refs are honoured only when
// allowLocal is set.
func (c *components) fetcher(allowLocal bool) *pdfdoc.Fetcher {
	f := &pdfdoc.Fetcher{
		HTTP:       &http.Client{Timeout: 60 * time.Second},
		MaxBytes:   c.cfg.Server.MaxUploadBytes,
		AllowLocal: allowLocal,
	}
	if c.s3 != nil {
		f.Objects = c.s3
	}
	return f
}

func (c *components) sinks() map[string]export.Sink {
	sinks := map[string]export.Sink{"dir": export.DirSink{Dir: c.cfg.Export.Dir}}
	if c.s3 != nil {
		sinks["s3"] = c.s3Sink(c.cfg.S3.ExportPrefix)
	}
	return sinks
}

func (c *components) s3Sink(prefix string) export.S3Sink {
	return export.S3Sink{Client: c.s3, Prefix: prefix, Password: c.cfg.S3.ExportPassword}
}

func (c *components) status() *statuscheck.Checker {
	opts := statuscheck.Options{ExportDir: c.cfg.Export.Dir}
	if c.pages != nil {
		opts.Redis = c.pages
	}
	if c.s3 != nil {
		opts.S3 = c.s3
	}
	return statuscheck.New(opts)
}

func (c *components) Close() {
	if c.pages != nil {
		if err := c.pages.Close(); err != nil {
			log.Warn().Err(err).Msg("close page store")
		}
	}
}
