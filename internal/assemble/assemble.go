// Package assemble concatenates several part PDFs, each repeated a chosen
// number of times, into one document for printing.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/local/partkit/internal/metrics"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/rs/zerolog/log"
)

// MaxReplicas bounds the copies of one source.
const MaxReplicas = 99

// DefaultName is used when no better output name can be derived.
const DefaultName = "assembled-parts"

var (
	// ErrNoPages is returned when every source has zero replicas.
	ErrNoPages = errors.New("nothing to assemble")
	// ErrUnknownSource is returned for names not in the plan.
	ErrUnknownSource = errors.New("unknown source")
)

// Merger concatenates whole PDFs in order.
type Merger interface {
	Merge(ctx context.Context, parts [][]byte) ([]byte, error)
}

// Source is one input document and how many times it is repeated.
type Source struct {
	Name     string `json:"name"`
	Pages    int    `json:"pages"`
	Replicas int    `json:"replicas"`

	doc *pdfdoc.Document
}

// Plan is the ordered list of sources to assemble.
type Plan struct {
	sources []Source
}

// NewPlan starts every document at one replica, sorted by name.
func NewPlan(docs []*pdfdoc.Document) *Plan {
	p := &Plan{sources: make([]Source, len(docs))}
	for i, d := range docs {
		p.sources[i] = Source{Name: d.Name(), Pages: d.PageCount(), Replicas: 1, doc: d}
	}
	sort.SliceStable(p.sources, func(i, j int) bool {
		a, b := strings.ToLower(p.sources[i].Name), strings.ToLower(p.sources[j].Name)
		if a != b {
			return a < b
		}
		return p.sources[i].Name < p.sources[j].Name
	})
	return p
}

// Sources returns the sources in output order.
func (p *Plan) Sources() []Source {
	return append([]Source(nil), p.sources...)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxReplicas {
		return MaxReplicas
	}
	return n
}

// SetReplicas sets the replica count of the source at i, clamped to
// [0, MaxReplicas]. Out-of-range indexes are ignored.
func (p *Plan) SetReplicas(i, n int) bool {
	if i < 0 || i >= len(p.sources) {
		return false
	}
	p.sources[i].Replicas = clamp(n)
	return true
}

// SetReplicasByName sets the replica count of every source named name.
func (p *Plan) SetReplicasByName(name string, n int) error {
	found := false
	for i := range p.sources {
		if p.sources[i].Name == name {
			p.sources[i].Replicas = clamp(n)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return nil
}

// Move takes the source at from and inserts it at to.
func (p *Plan) Move(from, to int) bool {
	n := len(p.sources)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}
	s := p.sources[from]
	p.sources = append(p.sources[:from], p.sources[from+1:]...)
	p.sources = append(p.sources[:to], append([]Source{s}, p.sources[to:]...)...)
	return true
}

// Reorder puts the named sources first, in the given order. Sources not
// named keep their relative order after them.
func (p *Plan) Reorder(names []string) error {
	used := make([]bool, len(p.sources))
	out := make([]Source, 0, len(p.sources))
	for _, name := range names {
		idx := -1
		for i, s := range p.sources {
			if !used[i] && s.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		used[idx] = true
		out = append(out, p.sources[idx])
	}
	for i, s := range p.sources {
		if !used[i] {
			out = append(out, s)
		}
	}
	p.sources = out
	return nil
}

// TotalPages is the page count of the assembled output.
func (p *Plan) TotalPages() int {
	total := 0
	for _, s := range p.sources {
		total += s.Pages * s.Replicas
	}
	return total
}

// Assemble concatenates each source's pages Replicas times, in plan order.
func (p *Plan) Assemble(ctx context.Context, m Merger) (out []byte, err error) {
	defer func() { metrics.IncExport("assemble", err) }()

	if p.TotalPages() == 0 {
		return nil, ErrNoPages
	}
	start := time.Now()
	var parts [][]byte
	for _, s := range p.sources {
		for r := 0; r < s.Replicas; r++ {
			parts = append(parts, s.doc.Bytes())
		}
	}
	out, err = m.Merge(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("assemble %d documents: %w", len(parts), err)
	}
	log.Info().Int("sources", len(p.sources)).Int("pages", p.TotalPages()).Int("size", len(out)).Dur("took", time.Since(start)).Msg("assembled pdf")
	return out, nil
}

var (
	partSuffix    = regexp.MustCompile(`(?i)[-_](1st|2nd|3rd|solo|bass|cornet|horn|trombone|euphonium|tuba|percussion|flugelhorn|baritone|soprano|repiano).*$`)
	trailingSeps  = regexp.MustCompile(`[-_\s]+$`)
	wordSeparator = regexp.MustCompile(`[-_\s]`)
)

// CommonPrefix derives an output name from the source file names. A single
// file loses its instrument suffix; several files share their longest common
// prefix. Prefixes shorter than three characters fall back to the first
// word of the first name, then to DefaultName.
func CommonPrefix(names []string) string {
	if len(names) == 0 {
		return DefaultName
	}
	if len(names) == 1 {
		out := strings.TrimSpace(partSuffix.ReplaceAllString(pdfdoc.BaseName(names[0]), ""))
		if out == "" {
			return DefaultName
		}
		return out
	}

	bases := make([]string, len(names))
	for i, n := range names {
		bases[i] = pdfdoc.BaseName(n)
	}
	prefix := bases[0]
	for _, b := range bases[1:] {
		for !strings.HasPrefix(b, prefix) {
			_, size := utf8.DecodeLastRuneInString(prefix)
			prefix = prefix[:len(prefix)-size]
		}
		if prefix == "" {
			break
		}
	}
	prefix = trailingSeps.ReplaceAllString(prefix, "")
	if len(prefix) < 3 {
		if first := wordSeparator.Split(bases[0], 2)[0]; len(first) >= 3 {
			return first
		}
		return DefaultName
	}
	return prefix
}

// OutputName returns name with a .pdf extension, or the derived default
// when name is blank.
func OutputName(name string, sources []string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = CommonPrefix(sources)
	}
	return pdfdoc.BaseName(name) + ".pdf"
}
