// Package normalize canonicalizes user supplied city names before they are
// sent to a weather provider.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/i474232898/regional-weather/internal/weather"
)

const maxNameLen = 100

var (
	errEmpty    = errors.New("empty city name")
	errTooLong  = errors.New("city name too long")
	errBadRunes = errors.New("city name contains unsupported characters")
)

// Transliterator implements weather.Normalizer. Cyrillic names are converted
// to Latin with the Ukrainian national romanization; every name is then
// title-cased word by word.
type Transliterator struct{}

var _ weather.Normalizer = (*Transliterator)(nil)

// New returns a ready Transliterator.
func New() *Transliterator {
	return &Transliterator{}
}

// Normalize returns the canonical form of raw.
func (t *Transliterator) Normalize(raw string) (string, error) {
	name := strings.Join(strings.Fields(norm.NFC.String(raw)), " ")
	if name == "" {
		return "", errEmpty
	}
	if len([]rune(name)) > maxNameLen {
		return "", errTooLong
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !strings.ContainsRune(" -'’.", r) {
			return "", fmt.Errorf("%w: %q", errBadRunes, r)
		}
	}

	if isCyrillic(name) {
		name = transliterate(name)
	}
	// Caser values keep state between calls and must not be shared.
	return cases.Title(language.Und).String(strings.ToLower(name)), nil
}

// isCyrillic reports whether every letter of s is Cyrillic.
func isCyrillic(s string) bool {
	letters := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.Is(unicode.Cyrillic, r) {
			return false
		}
		letters++
	}
	return letters > 0
}

// Ukrainian national romanization; Russian-only letters use the closest
// Ukrainian value. Letters with a separate word-initial form are listed in
// initial.
var (
	translit = map[rune]string{
		'а': "a", 'б': "b", 'в': "v", 'г': "h", 'ґ': "g", 'д': "d", 'е': "e",
		'є': "ie", 'ж': "zh", 'з': "z", 'и': "y", 'і': "i", 'ї': "i", 'й': "i",
		'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o", 'п': "p", 'р': "r",
		'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch",
		'ш': "sh", 'щ': "shch", 'ь': "", 'ю': "iu", 'я': "ia",
		'ё': "io", 'ы': "y", 'э': "e", 'ъ': "",
	}
	initial = map[rune]string{
		'є': "ye", 'ї': "yi", 'й': "y", 'ю': "yu", 'я': "ya", 'ё': "yo",
	}
)

func transliterate(s string) string {
	var b strings.Builder
	var prev rune
	for _, r := range strings.ToLower(s) {
		out, ok := translit[r]
		switch {
		case r == '\'' || r == '’':
			// apostrophes are dropped and do not start a new word
			continue
		case !ok:
			b.WriteRune(r)
			prev = r
			continue
		case !unicode.IsLetter(prev):
			if v, ok := initial[r]; ok {
				out = v
			}
		case r == 'г' && prev == 'з':
			// "zgh", so it does not read as "zh"
			out = "gh"
		}
		b.WriteString(out)
		prev = r
	}
	return b.String()
}
