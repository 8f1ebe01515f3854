package report

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// SanitizeName makes a unit or company name safe for a file name: diacritics
// stripped, lowercased, runs of non-alphanumerics collapsed to underscores.
func SanitizeName(name string) string {
	stripped, _, err := transform.String(diacriticStripper, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "relatorio"
	}
	return out
}

// ArtifactName builds the pipeline's file naming scheme,
// {sanitized-name}_{unix}.{ext}.
func ArtifactName(name string, at time.Time, ext string) string {
	return fmt.Sprintf("%s_%d.%s", SanitizeName(name), at.Unix(), ext)
}
