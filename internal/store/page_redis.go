package store

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PageStore caches extracted page text in Redis, keyed by the SHA-256 of
// the source document so identical uploads skip extraction.
type PageStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPageStore(redisURL string, ttl time.Duration) (*PageStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &PageStore{client: c, ttl: ttl}, nil
}

func (s *PageStore) Close() error { return s.client.Close() }

func (s *PageStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *PageStore) countKey(docHash string) string {
	return fmt.Sprintf("doc:%s:pages", docHash)
}

func (s *PageStore) pageKey(docHash string, page int) string {
	return fmt.Sprintf("doc:%s:page:%d", docHash, page)
}

// SavePageTexts stores texts[i] as page i+1.
func (s *PageStore) SavePageTexts(ctx context.Context, docHash string, texts []string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, t := range texts {
			key := s.pageKey(docHash, i+1)
			p.HSet(ctx, key, map[string]interface{}{"text": t, "chars": len(t)})
			if s.ttl > 0 {
				p.Expire(ctx, key, s.ttl)
			}
		}
		p.Set(ctx, s.countKey(docHash), len(texts), s.ttl)
		return nil
	})
	return err
}

// GetPageTexts returns cached texts, or ok=false when the document is not
// cached or a page key has expired.
func (s *PageStore) GetPageTexts(ctx context.Context, docHash string) ([]string, bool, error) {
	n, err := s.client.Get(ctx, s.countKey(docHash)).Int()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	cmds := make([]*redis.StringCmd, n)
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i := 0; i < n; i++ {
			cmds[i] = p.HGet(ctx, s.pageKey(docHash, i+1), "text")
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, false, err
	}

	texts := make([]string, n)
	for i, cmd := range cmds {
		t, err := cmd.Result()
		if err == redis.Nil {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		texts[i] = t
	}
	return texts, true, nil
}
