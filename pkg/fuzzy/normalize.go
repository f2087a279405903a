// Package fuzzy normalizes artist names and track titles so that superficially different
// spellings compare equal.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/unicode/norm"
)

var (
	featRegex       = regexp.MustCompile(`(?i)\s*[\(\[]?\s*(?:feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]?\s*`)
	versionRegex    = regexp.MustCompile(`(?i)\s*[\(\[]\s*[^\)\]]*(remaster|remastered|deluxe|extended|radio edit|live|version|mix)[^\)\]]*[\)\]]\s*`)
	dashSuffixRegex = regexp.MustCompile(`(?i)\s+-\s+.*(remaster|remastered|radio edit|live|version|mix).*$`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s&]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
	leadingTheRegex = regexp.MustCompile(`^the\s+`)
)

type Normalizer struct {
	similarity strutil.StringMetric
}

func NewNormalizer() *Normalizer {
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = false
	return &Normalizer{similarity: lev}
}

// ArtistKey folds an artist display name into the key used for de-duplication.
// "The Beatles", "Beatles" and "BEATLES" share a key; "Beyoncé" and "Beyonce" too.
func (n *Normalizer) ArtistKey(artist string) string {
	artist = n.basicNormalize(artist)
	artist = strings.ReplaceAll(artist, " and ", " & ")
	artist = leadingTheRegex.ReplaceAllString(artist, "")
	return strings.TrimSpace(artist)
}

// TitleKey strips featuring credits and version suffixes from a track title
func (n *Normalizer) TitleKey(title string) string {
	title = featRegex.ReplaceAllString(title, " ")
	title = versionRegex.ReplaceAllString(title, " ")
	title = dashSuffixRegex.ReplaceAllString(title, "")
	return n.basicNormalize(title)
}

// SameArtist reports whether two display names refer to the same artist
func (n *Normalizer) SameArtist(a, b string) bool {
	return n.ArtistKey(a) == n.ArtistKey(b)
}

// TitleSimilarity returns a 0..1 similarity between two titles after normalization
func (n *Normalizer) TitleSimilarity(a, b string) float64 {
	ka, kb := n.TitleKey(a), n.TitleKey(b)
	if ka == kb {
		return 1.0
	}
	if ka == "" || kb == "" {
		return 0.0
	}
	return strutil.Similarity(ka, kb, n.similarity)
}

func (n *Normalizer) basicNormalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(strings.ToLower(text))
}
