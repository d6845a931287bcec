// Package ingest implements the Ingestion Pipeline: normalize → chunk →
// detect language → hash → embed → upsert → link.
package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies Unicode NFC normalization, collapses runs of
// whitespace to a single space, and strips control characters, per
// spec.md §4.4 step 1.
func Normalize(text string) string {
	nfc := norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(nfc))
	lastWasSpace := false
	for _, r := range nfc {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			b.WriteByte(' ')
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
