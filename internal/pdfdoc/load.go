package pdfdoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ObjectSource fetches objects from a bucket store such as S3.
type ObjectSource interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// ErrLocalRef is returned for filesystem refs when AllowLocal is off.
var ErrLocalRef = errors.New("local file references are disabled")

// Fetcher reads a source PDF referenced by ref into memory.
// Supported refs:
//   - file://path or plain filesystem paths (requires AllowLocal)
//   - http(s):// URLs
//   - s3://bucket/key (requires Objects)
type Fetcher struct {
	HTTP       *http.Client
	Objects    ObjectSource
	MaxBytes   int64
	AllowLocal bool
}

// Fetch returns the display name and the raw bytes behind ref.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (string, []byte, error) {
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		return f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	default:
		return f.fetchLocal(ctx, strings.TrimPrefix(ref, "file://"))
	}
}

func (f *Fetcher) fetchLocal(ctx context.Context, p string) (string, []byte, error) {
	if !f.AllowLocal {
		return "", nil, fmt.Errorf("%w: %s", ErrLocalRef, p)
	}
	file, err := os.Open(p)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", p, err)
	}
	defer file.Close()
	st, err := file.Stat()
	if err != nil {
		return "", nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if !st.Mode().IsRegular() {
		return "", nil, fmt.Errorf("read %s: not a regular file", p)
	}
	if err := f.checkSize(st.Size()); err != nil {
		return "", nil, err
	}
	data, err := f.readAll(ctx, file)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", p, err)
	}
	return filepath.Base(p), data, nil
}

// readAll reads r up to MaxBytes, stopping early when ctx is done.
func (f *Fetcher) readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	if f.MaxBytes > 0 {
		r = io.LimitReader(r, f.MaxBytes+1)
	}
	data, err := io.ReadAll(ctxReader{ctx: ctx, r: r})
	if err != nil {
		return nil, err
	}
	if err := f.checkSize(int64(len(data))); err != nil {
		return nil, err
	}
	return data, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", nil, err
	}
	cli := f.HTTP
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	data, err := f.readAll(ctx, resp.Body)
	if err != nil {
		return "", nil, err
	}

	name := "document.pdf"
	if u, err := url.Parse(ref); err == nil {
		if b := path.Base(u.Path); b != "" && b != "/" && b != "." {
			name = b
		}
	}
	log.Debug().Str("url", ref).Int("size", len(data)).Msg("downloaded source pdf")
	return name, data, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, ref string) (string, []byte, error) {
	if f.Objects == nil {
		return "", nil, fmt.Errorf("s3 source not configured: %s", ref)
	}
	p := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", nil, fmt.Errorf("invalid s3 url: %s", ref)
	}
	bucket, key := p[:slash], p[slash+1:]
	data, err := f.Objects.Fetch(ctx, bucket, key)
	if err != nil {
		return "", nil, err
	}
	if err := f.checkSize(int64(len(data))); err != nil {
		return "", nil, err
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("downloaded s3 pdf")
	return path.Base(key), data, nil
}

func (f *Fetcher) checkSize(n int64) error {
	if f.MaxBytes > 0 && n > f.MaxBytes {
		return fmt.Errorf("%w: source exceeds %d bytes", ErrTooLarge, f.MaxBytes)
	}
	return nil
}
