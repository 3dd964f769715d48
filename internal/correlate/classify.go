// Package correlate matches inbound SIM/NAO replies back to the outbound
// campaign row that solicited them and keeps the campaign tallies consistent
// under concurrent replies.
package correlate

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"zapgw/internal/domain"
)

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// canonical folds accents, lower-cases and collapses whitespace, reducing
// "  NÃO, obrigado " to "nao, obrigado".
func canonical(text string) string {
	folded, _, err := transform.String(foldAccents, text)
	if err != nil {
		folded = text
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Classify maps a reply text to SIM or NAO by its leading token. The token is
// compared after accent folding, so "Não" and "nao" classify identically.
func Classify(text string) (domain.ResponseClass, bool) {
	c := canonical(text)
	if c == "" {
		return 0, false
	}
	token := c
	if i := strings.IndexAny(c, " ,.;:!?"); i >= 0 {
		token = c[:i]
	}
	switch token {
	case "1", "sim", "s", "ok", "yes", "y":
		return domain.RespostaSim, true
	case "2", "nao", "n", "no":
		return domain.RespostaNao, true
	}
	return 0, false
}

// ClassifyOptKeyword recognizes subscription keywords ahead of SIM/NAO
// classification.
func ClassifyOptKeyword(text string) (domain.OptInStatus, bool) {
	switch canonical(text) {
	case "sair", "cancelar", "stop":
		return domain.OptOut, true
	case "entrar", "start":
		return domain.OptIn, true
	}
	return "", false
}
