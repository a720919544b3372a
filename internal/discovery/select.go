package discovery

import (
	"hash/fnv"

	"brandlens/internal/model"
)

// SelectOptions bounds the crawl seed set.
type SelectOptions struct {
	MaxPages        int
	HighSignalSeeds int
}

// Selection is the crawl plan. Seeds are fetched unconditionally; Expansion
// holds the remaining ranked candidates, fetched one at a time and admitted
// by novelty until the page cap or diminishing returns.
type Selection struct {
	Seeds     []string
	Expansion []string
}

// SelectSeeds picks the pages worth fetching: the homepage always, then up to
// HighSignalSeeds high-signal non-locale HTML pages by rank, then at most one
// qualifying PDF. The rest of the positively scored pool is queued for
// novelty expansion in rank order.
func SelectSeeds(homepage string, scored []model.ScoredLink, opts SelectOptions) Selection {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 18
	}
	highSignal := opts.HighSignalSeeds
	if highSignal <= 0 {
		highSignal = 12
	}

	selected := []string{homepage}
	seen := map[string]struct{}{homepage: {}}

	taken := 0
	for _, l := range scored {
		if taken >= highSignal || len(selected) >= maxPages {
			break
		}
		if _, ok := seen[l.URL]; ok {
			continue
		}
		if l.Score <= 0 || IsPDF(l.URL) || IsLocaleVariant(l.URL) || !IsHighSignal(l.URL) {
			continue
		}
		seen[l.URL] = struct{}{}
		selected = append(selected, l.URL)
		taken++
	}

	if len(selected) < maxPages {
		for _, l := range scored {
			if !IsAllowedPDF(l.URL) {
				continue
			}
			if _, ok := seen[l.URL]; ok {
				continue
			}
			seen[l.URL] = struct{}{}
			selected = append(selected, l.URL)
			break
		}
	}

	sel := Selection{Seeds: selected}
	for _, l := range scored {
		// The stop rule bounds expansion fetches in practice; the hard cap
		// only guards pathological candidate pools.
		if len(sel.Expansion) >= 2*maxPages {
			break
		}
		if _, ok := seen[l.URL]; ok {
			continue
		}
		if l.Score <= 0 || IsPDF(l.URL) || IsLocaleVariant(l.URL) {
			continue
		}
		seen[l.URL] = struct{}{}
		sel.Expansion = append(sel.Expansion, l.URL)
	}
	return sel
}

const (
	shingleSize = 12

	// noveltyThresholdDefault is the minimum Jaccard distance from the
	// accumulated corpus for a page to be worth keeping.
	noveltyThresholdDefault = 0.12

	// Early stop once the mean novelty of the last three evaluated candidates
	// falls under the threshold; the site has started repeating itself.
	diminishingWindow = 3
)

// NoveltyTracker measures how much new text a candidate page adds, using
// hashed character shingles and Jaccard distance against everything accepted
// so far.
type NoveltyTracker struct {
	threshold float64
	global    map[uint64]struct{}
	trailing  []float64
}

func NewNoveltyTracker(threshold float64) *NoveltyTracker {
	if threshold <= 0 {
		threshold = noveltyThresholdDefault
	}
	return &NoveltyTracker{
		threshold: threshold,
		global:    make(map[uint64]struct{}),
	}
}

// shingles hashes every character window of fixed width.
func shingles(text string) map[uint64]struct{} {
	out := make(map[uint64]struct{})
	runes := []rune(text)
	if len(runes) < shingleSize {
		if len(runes) > 0 {
			h := fnv.New64a()
			h.Write([]byte(string(runes)))
			out[h.Sum64()] = struct{}{}
		}
		return out
	}
	for i := 0; i+shingleSize <= len(runes); i++ {
		h := fnv.New64a()
		h.Write([]byte(string(runes[i : i+shingleSize])))
		out[h.Sum64()] = struct{}{}
	}
	return out
}

// Novelty returns the Jaccard distance of text from the accumulated corpus
// without admitting it. An empty corpus makes everything fully novel.
func (n *NoveltyTracker) Novelty(text string) float64 {
	s := shingles(text)
	if len(s) == 0 {
		return 0
	}
	if len(n.global) == 0 {
		return 1
	}

	intersect := 0
	for h := range s {
		if _, ok := n.global[h]; ok {
			intersect++
		}
	}
	union := len(s) + len(n.global) - intersect
	if union == 0 {
		return 0
	}
	return 1 - float64(intersect)/float64(union)
}

// Admit scores text against the corpus and, when novel enough, folds its
// shingles in. It reports acceptance and whether diminishing returns suggest
// stopping the crawl.
func (n *NoveltyTracker) Admit(text string) (accepted bool, stop bool) {
	novelty := n.Novelty(text)

	// Every evaluated candidate feeds the stop window, rejected ones
	// included; accepted novelties alone could never average below the
	// threshold.
	n.trailing = append(n.trailing, novelty)
	if len(n.trailing) > diminishingWindow {
		n.trailing = n.trailing[len(n.trailing)-diminishingWindow:]
	}
	if len(n.trailing) == diminishingWindow {
		sum := 0.0
		for _, v := range n.trailing {
			sum += v
		}
		stop = sum/diminishingWindow < n.threshold
	}

	if novelty < n.threshold {
		return false, stop
	}
	for h := range shingles(text) {
		n.global[h] = struct{}{}
	}
	return true, stop
}
