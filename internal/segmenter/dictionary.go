package segmenter

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed instruments.yaml
var defaultDictionary []byte

// Instrument is one part name and the header texts that identify it.
type Instrument struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// Dictionary is an ordered list of instruments. Earlier entries win ties.
type Dictionary struct {
	Instruments []Instrument `yaml:"instruments"`

	compiled []pattern
}

type pattern struct {
	label string
	text  string // normalized, padded with spaces
	order int
}

// LoadDictionary reads a YAML dictionary from path, or the built-in brass
// band dictionary when path is empty.
func LoadDictionary(path string) (*Dictionary, error) {
	if path == "" {
		return ParseDictionary(defaultDictionary)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments file: %w", err)
	}
	return ParseDictionary(data)
}

// ParseDictionary decodes and compiles a YAML dictionary.
func ParseDictionary(data []byte) (*Dictionary, error) {
	var d Dictionary
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse instruments: %w", err)
	}
	if len(d.Instruments) == 0 {
		return nil, fmt.Errorf("parse instruments: no instruments defined")
	}
	for i, inst := range d.Instruments {
		name := strings.TrimSpace(inst.Name)
		if name == "" {
			return nil, fmt.Errorf("parse instruments: entry %d has no name", i)
		}
		pats := inst.Patterns
		if len(pats) == 0 {
			pats = []string{name}
		}
		for _, p := range pats {
			n := normalize(p)
			if n == "" {
				continue
			}
			d.compiled = append(d.compiled, pattern{label: name, text: " " + n + " ", order: i})
		}
	}
	return &d, nil
}

// Match returns the instrument named in text. Among matches, the one that
// starts earliest wins; a longer pattern wins at the same position.
func (d *Dictionary) Match(text string) (string, bool) {
	hay := " " + normalize(text) + " "
	best, bestPos := -1, -1
	for i, p := range d.compiled {
		pos := strings.Index(hay, p.text)
		if pos < 0 {
			continue
		}
		if best < 0 || pos < bestPos ||
			(pos == bestPos && len(p.text) > len(d.compiled[best].text)) {
			best, bestPos = i, pos
		}
	}
	if best < 0 {
		return "", false
	}
	return d.compiled[best].label, true
}

// normalize lower-cases s, turns every non letter/digit into a space and
// collapses runs of spaces.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}
