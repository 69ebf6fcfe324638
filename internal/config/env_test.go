package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "MAX_UPLOAD_MB", "SESSION_IDLE_TTL", "REDIS_URL", "EXPORT_DIR", "SEGMENTER_HEADER_CHARS", "AXIOM_DATASET", "ALLOW_LOCAL_REFS"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Server.Port != "8080" || cfg.Server.MaxUploadBytes != 64<<20 || cfg.Server.SessionIdleTTL != 2*time.Hour {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Cache.RedisURL != "" || cfg.Export.Dir != "exports" || cfg.Segmenter.HeaderChars != 400 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Server.AllowLocalRefs {
		t.Error("local refs enabled by default")
	}
	if cfg.Axiom.Dataset != "dev_partkit" {
		t.Errorf("dataset = %q", cfg.Axiom.Dataset)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_UPLOAD_MB", "2")
	t.Setenv("SESSION_IDLE_TTL", "15m")
	t.Setenv("THUMB_DPI", "not-a-number")
	t.Setenv("LOG_PRETTY", "yes")
	cfg := FromEnv()
	if cfg.Server.Port != "9000" || cfg.Server.MaxUploadBytes != 2<<20 || cfg.Server.SessionIdleTTL != 15*time.Minute {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Render.ThumbDPI != 50 || !cfg.Logging.Pretty {
		t.Errorf("render = %+v, pretty = %v", cfg.Render, cfg.Logging.Pretty)
	}
}
