package pagetext

import (
	"regexp"
	"sort"
)

// TextSample summarises how much text a document carries. Scanned scores have
// none, which leaves part detection with nothing to match.
type TextSample struct {
	TotalPages   int   `json:"total_pages"`
	SampledPages []int `json:"sampled_pages"`
	Chars        int   `json:"chars"`
	Threshold    int   `json:"threshold"`
	HasText      bool  `json:"has_text"`
}

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 30

var whitespaceRegex = regexp.MustCompile(`\s+`)

// SampleTexts samples first, middle and last pages plus evenly spaced pages
// in between (at most five) and counts non-whitespace characters.
func SampleTexts(texts []string, threshold int) TextSample {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	p := TextSample{TotalPages: len(texts), Threshold: threshold, SampledPages: sampleIndices(len(texts))}
	for _, i := range p.SampledPages {
		p.Chars += len(whitespaceRegex.ReplaceAllString(texts[i], ""))
	}
	p.HasText = p.Chars >= threshold
	return p
}

func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	set := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}, total / 4: {}, (3 * total) / 4: {}}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
