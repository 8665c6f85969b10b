package importer

import (
	"strings"
	"unicode"
)

// titlePrefixRunes is how much of a title takes part in duplicate detection.
const titlePrefixRunes = 60

// NormalizeTitle folds case, drops punctuation and symbols, collapses
// whitespace and keeps the first 60 runes. Two titles with the same
// normalized form are treated as duplicates.
func NormalizeTitle(title string) string {
	var b strings.Builder
	n := 0
	space := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Cf, r):
			continue
		}
		if n >= titlePrefixRunes {
			break
		}
		if space {
			b.WriteByte(' ')
			n++
			space = false
			if n >= titlePrefixRunes {
				break
			}
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// titleIndex tracks normalized titles already present in the knowledge base.
type titleIndex map[string]struct{}

func newTitleIndex(titles []string) titleIndex {
	idx := make(titleIndex, len(titles))
	for _, t := range titles {
		idx.add(t)
	}
	return idx
}

func (idx titleIndex) has(title string) bool {
	_, ok := idx[NormalizeTitle(title)]
	return ok
}

func (idx titleIndex) add(title string) {
	if key := NormalizeTitle(title); key != "" {
		idx[key] = struct{}{}
	}
}
