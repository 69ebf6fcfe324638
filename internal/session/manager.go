package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/local/partkit/internal/artifact"
	"github.com/local/partkit/internal/metrics"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segment"
	"github.com/rs/zerolog/log"
)

// Sniffer rejects uploads that are not PDFs.
type Sniffer interface {
	RequirePDF(name string, data []byte) error
}

// Opener parses source bytes into a Document.
type Opener interface {
	Open(name string, data []byte) (*pdfdoc.Document, error)
}

// Proposer produces the initial segmentation of a document.
type Proposer interface {
	Propose(ctx context.Context, doc *pdfdoc.Document) ([]segment.Proposal, error)
}

// Manager owns all live sessions.
type Manager struct {
	sniff    Sniffer
	opener   Opener
	proposer Proposer
	regen    *artifact.Regenerator
	ttl      time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. A ttl of zero disables idle expiry.
func NewManager(sniff Sniffer, opener Opener, proposer Proposer, regen *artifact.Regenerator, ttl time.Duration) *Manager {
	return &Manager{
		sniff:    sniff,
		opener:   opener,
		proposer: proposer,
		regen:    regen,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Load validates and parses data, proposes a partition, regenerates every
// artifact and registers the session. Input errors abort the load with no
// session created. Regeneration failures do not; they are returned
// alongside the session and the affected artifacts are stale.
func (m *Manager) Load(ctx context.Context, name string, data []byte, baseName string) (*Session, []*artifact.RegenerationError, error) {
	if err := m.sniff.RequirePDF(name, data); err != nil {
		return nil, nil, err
	}
	doc, err := m.opener.Open(name, data)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	props, err := m.proposer.Propose(ctx, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("segment %s: %w", name, err)
	}
	part, err := segment.NewPartition(doc.PageCount(), props)
	if err != nil {
		return nil, nil, err
	}

	s := newSession(uuid.NewString(), doc, part, m.regen, baseName, m.now())
	errs := s.regenerateAll(ctx)

	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetSessions(n)

	log.Info().Str("session", s.id).Str("file", name).Int("pages", doc.PageCount()).
		Int("segments", part.Len()).Int("failed", len(errs)).Msg("session loaded")
	return s, errs, nil
}

// Get returns the session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch(m.now())
	return s, nil
}

// Delete tears down a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.SetSessions(n)
	log.Info().Str("session", id).Msg("session closed")
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the ttl and returns how many
// were removed.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if len(expired) > 0 {
		metrics.SetSessions(n)
		log.Info().Int("expired", len(expired)).Int("remaining", n).Msg("swept idle sessions")
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}
