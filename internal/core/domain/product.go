package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultProducts is the catalog used when no database is reachable.
var DefaultProducts = []string{
	"Bolo_de_Chocolate",
	"Brigadeiro_Gourmet",
	"Cafe_Expresso",
	"Cappuccino",
	"Croissant",
	"Pao_de_Acucar",
	"Pao_Frances",
	"Pao_Integral",
	"Suco_Natural",
	"Torta_de_Morango",
}

// NormalizeProductName strips accents, replaces every run of non-alphanumeric
// characters with a single underscore and trims leading/trailing underscores.
// "Pão Francês" becomes "Pao_Frances".
func NormalizeProductName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range plain {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// DisplayProductName turns a normalized name back into a human label.
func DisplayProductName(normalized string) string {
	return strings.ReplaceAll(normalized, "_", " ")
}

// ModelFileName returns the artifact file name for a product.
func ModelFileName(product string) string {
	return "prophet_model_" + NormalizeProductName(product) + ".json"
}
