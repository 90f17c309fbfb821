// Package moderation masks blocked words in chat bodies before they are stored.
package moderation

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

const defaultMask = '*'

// Censor matches a fixed word list case-insensitively and masks every hit.
type Censor struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewCensor builds the automaton for words. It returns nil, nil when the list has no
// usable entries so callers can skip moderation entirely. The first rune of
// replacement is used as the mask; empty means '*'.
func NewCensor(words []string, replacement string) (*Censor, error) {
	patterns := make([][]rune, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		patterns = append(patterns, []rune(w))
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}

	mask := defaultMask
	if r := []rune(replacement); len(r) > 0 {
		mask = r[0]
	}
	return &Censor{machine: m, mask: mask}, nil
}

// Censor returns text with each blocked word replaced rune for rune by the mask.
func (c *Censor) Censor(text string) string {
	if c == nil || text == "" {
		return text
	}

	runes := []rune(text)
	// ToLower keeps one rune per rune, so match offsets index runes directly.
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}

	hits := c.machine.MultiPatternSearch(lowered, false)
	if len(hits) == 0 {
		return text
	}
	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(runes) {
			continue
		}
		for i := hit.Pos; i < end; i++ {
			runes[i] = c.mask
		}
	}
	return string(runes)
}
