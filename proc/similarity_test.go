package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Blinding Lights", "Blinding Lights", 1},
		{"case insensitive", "BLINDING lights", "blinding LIGHTS", 1},
		{"empty left", "", "anything", 0},
		{"empty right", "anything", "", 0},
		{"one edit", "kitten", "sitten", 1 - 1.0/6},
		{"classic", "kitten", "sitting", 1 - 3.0/7},
		{"disjoint", "abc", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarity_SymmetricAndBounded(t *testing.T) {
	pairs := [][2]string{
		{"The Weeknd", "Weeknd"},
		{"Daft Punk", "Daft Punk - Topic"},
		{"ポケモン", "ポケットモンスター"},
		{"a", "abcdefghij"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		assert.Equal(t, ab, ba, "%q vs %q", p[0], p[1])
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 1.0)
	}
}

func TestSimilarity_CountsRunesNotBytes(t *testing.T) {
	// One substituted rune out of three, regardless of UTF-8 width.
	assert.InDelta(t, 2.0/3, Similarity("日本語", "日本人"), 1e-9)
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{
			name:  "strips bracketed segments and stop words",
			title: "The Weeknd - Blinding Lights (Official Video) [HD]",
			want:  []string{"weeknd", "blinding", "lights"},
		},
		{
			name:  "drops short and numeric tokens",
			title: "Up 2 me 1999 go now",
			want:  []string{"now"},
		},
		{
			name:  "dedups preserving order",
			title: "Echo echo ECHO chamber",
			want:  []string{"echo", "chamber"},
		},
		{
			name:  "feat is a stop word",
			title: "Song feat. Someone",
			want:  []string{"song", "someone"},
		},
		{
			name:  "braces are stripped",
			title: "Track {Remix} Name",
			want:  []string{"track", "name"},
		},
		{
			name:  "nothing meaningful",
			title: "(Official Audio)",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.title))
		})
	}
}

func TestKeywordOverlap(t *testing.T) {
	assert.Equal(t, 0.0, KeywordOverlap(nil, []string{"a"}))
	assert.Equal(t, 0.0, KeywordOverlap([]string{"a"}, nil))
	assert.Equal(t, 1.0, KeywordOverlap([]string{"blinding"}, []string{"blinding", "lights", "weeknd"}))
	assert.Equal(t, 0.5, KeywordOverlap([]string{"blinding", "dark"}, []string{"blinding", "lights", "weeknd"}))
	assert.Equal(t, KeywordOverlap([]string{"x", "y"}, []string{"y"}), KeywordOverlap([]string{"y"}, []string{"x", "y"}))
}

func TestMatchAgainst(t *testing.T) {
	seedKeywords := ExtractKeywords("Blinding Lights")

	sameArtist := matchAgainst("Blinding Lights", "The Weeknd", seedKeywords, "Save Your Tears", "The Weeknd")
	assert.True(t, sameArtist.qualifies())
	assert.InDelta(t, AuthorBlendWeight*1+TitleBlendWeight*sameArtist.titleSim, sameArtist.score(), 1e-9)

	keywordHit := matchAgainst("Blinding Lights", "The Weeknd", seedKeywords, "Lights Out Blinding Remix Extended Version", "Someone Else")
	assert.LessOrEqual(t, keywordHit.titleSim, TitleSimilarityThreshold)
	assert.GreaterOrEqual(t, keywordHit.overlap, KeywordOverlapThreshold)
	assert.True(t, keywordHit.qualifies())

	unrelated := matchAgainst("Blinding Lights", "The Weeknd", seedKeywords, "Bohemian Rhapsody", "Queen")
	assert.False(t, unrelated.qualifies())
}
