package track

import (
	"fmt"
	"strings"
)

// Candidate is one subtitle track returned by a provider search.
type Candidate struct {
	ID               string
	ReleaseLabel     string
	FileID           int
	FileName         string
	DownloadCount    int
	ForeignPartsOnly bool
}

// label returns the string the candidate is matched on.
func (c Candidate) label() string {
	if c.ReleaseLabel != "" {
		return c.ReleaseLabel
	}
	return c.FileName
}

// ErrNoTrack is returned when no viable track exists in the candidate set.
type ErrNoTrack struct {
	Reason string
}

func (e *ErrNoTrack) Error() string {
	return fmt.Sprintf("no viable subtitle track: %s", e.Reason)
}

// Select picks the single best candidate.
//
// Foreign-parts-only tracks are excluded unless that would empty the set.
// With a reference filename the candidate whose release label is most
// similar wins; otherwise, or when nothing matches at all, the most
// downloaded candidate wins. Ties keep the first-encountered candidate.
func Select(candidates []Candidate, referenceName string) (Candidate, error) {
	pool := excludeForeignParts(candidates)
	if len(pool) == 0 {
		return Candidate{}, &ErrNoTrack{Reason: "empty candidate set"}
	}

	selected, ok := bestByName(pool, referenceName)
	if !ok {
		selected = bestByDownloads(pool)
	}

	if selected.FileID == 0 {
		return Candidate{}, &ErrNoTrack{Reason: "selected track has no retrievable file"}
	}
	return selected, nil
}

// excludeForeignParts filters out forced/foreign-parts tracks, falling back
// to the unfiltered set when nothing would remain.
func excludeForeignParts(candidates []Candidate) []Candidate {
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.ForeignPartsOnly {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return candidates
	}
	return filtered
}

func bestByName(candidates []Candidate, referenceName string) (Candidate, bool) {
	if referenceName == "" {
		return Candidate{}, false
	}

	ref := normalizeLabel(referenceName)
	var best Candidate
	var bestScore float64
	for _, c := range candidates {
		score := similarity(ref, normalizeLabel(c.label()))
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	if bestScore <= 0 {
		return Candidate{}, false
	}
	return best, true
}

func bestByDownloads(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.DownloadCount > best.DownloadCount {
			best = c
		}
	}
	return best
}

// normalizeLabel lowercases and strips everything but letters, digits and
// spaces so release naming punctuation does not skew matching.
func normalizeLabel(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// similarity computes the Ratcliff/Obershelp ratio between two strings:
// twice the number of matching characters over the total length.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return 2 * float64(matchingChars(a, b)) / float64(len(a)+len(b))
}

// matchingChars counts matching characters by finding the longest common
// substring and recursing into the unmatched halves on either side.
func matchingChars(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	matched := size
	matched += matchingChars(a[:ai], b[:bi])
	matched += matchingChars(a[ai+size:], b[bi+size:])
	return matched
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	// lengths[j] holds the common-suffix length ending at a[i-1], b[j-1]
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prev + 1
				if lengths[j] > size {
					size = lengths[j]
					ai = i - size
					bi = j - size
				}
			} else {
				lengths[j] = 0
			}
			prev = cur
		}
	}
	return ai, bi, size
}
