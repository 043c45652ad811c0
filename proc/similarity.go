package proc

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// TitleSimilarityThreshold is the score above which two titles count as similar.
	TitleSimilarityThreshold = 0.4
	// AuthorSimilarityThreshold is the score above which two authors count as the same artist.
	AuthorSimilarityThreshold = 0.7
	// KeywordOverlapThreshold qualifies a title by shared keywords when edit distance is weak.
	KeywordOverlapThreshold = 0.5

	AuthorBlendWeight = 0.7
	TitleBlendWeight  = 0.3
)

var (
	bracketSegmentRegex = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)

	stopWords = map[string]struct{}{
		"the": {}, "and": {}, "but": {}, "nor": {}, "for": {}, "yet": {}, "with": {},
		"from": {}, "into": {}, "feat": {}, "featuring": {}, "prod": {},
		"official": {}, "video": {}, "audio": {}, "lyrics": {}, "lyric": {}, "music": {},
		"remastered": {}, "remaster": {}, "version": {}, "visualizer": {}, "live": {},
		"hd": {}, "hq": {}, "mv": {}, "topic": {},
	}
)

// Similarity returns a case-insensitive normalized Levenshtein similarity in [0,1].
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if string(ra) == string(rb) {
		return 1
	}
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// ExtractKeywords reduces a title to its meaningful words, in order and without repeats.
func ExtractKeywords(title string) []string {
	t := bracketSegmentRegex.ReplaceAllString(strings.ToLower(title), " ")

	var sb strings.Builder
	for _, r := range t {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}

	seen := make(map[string]struct{})
	var keywords []string
	for _, w := range strings.Fields(sb.String()) {
		if len([]rune(w)) <= 2 || isNumeric(w) {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
	}
	return keywords
}

// KeywordOverlap is the share of the smaller keyword set that also appears in the other.
func KeywordOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	set := make(map[string]struct{}, len(large))
	for _, w := range large {
		set[w] = struct{}{}
	}
	shared := 0
	for _, w := range small {
		if _, ok := set[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// trackMatch scores a history track against a seed.
type trackMatch struct {
	titleSim  float64
	authorSim float64
	overlap   float64
}

func matchAgainst(seedTitle, seedAuthor string, seedKeywords []string, title, author string) trackMatch {
	m := trackMatch{
		titleSim:  Similarity(seedTitle, title),
		authorSim: Similarity(seedAuthor, author),
	}
	if m.titleSim <= TitleSimilarityThreshold {
		m.overlap = KeywordOverlap(seedKeywords, ExtractKeywords(title))
	}
	return m
}

func (m trackMatch) qualifies() bool {
	return m.titleSim > TitleSimilarityThreshold ||
		m.authorSim > AuthorSimilarityThreshold ||
		m.overlap >= KeywordOverlapThreshold
}

func (m trackMatch) score() float64 {
	return AuthorBlendWeight*m.authorSim + TitleBlendWeight*m.titleSim
}
