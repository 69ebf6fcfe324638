package segmenter

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segment"
)

type fakeTexts []string

func (f fakeTexts) PageTexts(context.Context, *pdfdoc.Document) ([]string, error) {
	return f, nil
}

func mustDefault(t *testing.T) *Dictionary {
	t.Helper()
	d, err := LoadDictionary("")
	if err != nil {
		t.Fatalf("load default dictionary: %v", err)
	}
	return d
}

func TestMatch(t *testing.T) {
	d := mustDefault(t)
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"SOLO CORNET\nCrimond", "Solo Cornet", true},
		{"Crimond - Bass Trombone", "Bass Trombone", true},
		{"E♭ Bass", "", false},
		{"Eb Bass\nArr. J. Smith", "Eb Bass", true},
		{"Flugelhorn", "Flugelhorn", true},
		{"2nd Horn in Eb", "2nd Horn", true},
		{"Andante cantabile", "", false},
		{"hornpipe", "", false},
	}
	for _, tc := range cases {
		got, ok := d.Match(tc.text)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseDictionaryErrors(t *testing.T) {
	for _, in := range []string{"", "instruments: []", "instruments:\n  - patterns: [x]", "{"} {
		if _, err := ParseDictionary([]byte(in)); err == nil {
			t.Errorf("ParseDictionary(%q): expected error", in)
		}
	}
}

func TestProposeFromTexts(t *testing.T) {
	d, err := ParseDictionary([]byte(`
instruments:
  - name: Flute
  - name: Oboe
    patterns: [oboe, hautbois]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := New(d, nil, 0)

	texts := []string{
		"Title page",
		"FLUTE\nAllegro",
		"",
		"Hautbois",
		"continued",
		"oboe",
		"Flute",
	}
	got := s.ProposeFromTexts(texts)
	want := []segment.Proposal{
		{Label: "Part 1", StartPage: 1, EndPage: 1},
		{Label: "Flute", StartPage: 2, EndPage: 3},
		{Label: "Oboe", StartPage: 4, EndPage: 6},
		{Label: "Flute", StartPage: 7, EndPage: 7},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
	if _, err := segment.NewPartition(len(texts), got); err != nil {
		t.Errorf("proposal rejected: %v", err)
	}
}

func TestHeaderWindow(t *testing.T) {
	d := mustDefault(t)
	s := New(d, nil, 20)
	texts := []string{strings.Repeat("x ", 30) + "Euphonium"}
	got := s.ProposeFromTexts(texts)
	if len(got) != 1 || got[0].Label != "Part 1" {
		t.Errorf("match outside header window: %+v", got)
	}
}

func TestPropose(t *testing.T) {
	d := mustDefault(t)
	doc := pdfdoc.NewDocument("march.pdf", []byte("%PDF"), 4)
	s := New(d, fakeTexts{"Solo Cornet", "", "Euphonium"}, 0)
	got, err := s.Propose(context.Background(), doc)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	want := []segment.Proposal{
		{Label: "Solo Cornet", StartPage: 1, EndPage: 2},
		{Label: "Euphonium", StartPage: 3, EndPage: 4},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
