package tui

import tea "github.com/charmbracelet/bubbletea"

// normalizeFullWidth maps full-width ASCII letters, digits and the
// ideographic space to their half-width forms, so commands keep working
// while an input method is active.
func normalizeFullWidth(r rune) rune {
	switch {
	case r >= 'ａ' && r <= 'ｚ':
		return r - 'ａ' + 'a'
	case r >= 'Ａ' && r <= 'Ｚ':
		return r - 'Ａ' + 'A'
	case r >= '０' && r <= '９':
		return r - '０' + '0'
	case r == '　':
		return ' '
	}
	return r
}

// keyString is the normalized name of a key press used by command bindings.
func keyString(msg tea.KeyMsg) string {
	if msg.Type != tea.KeyRunes || len(msg.Runes) == 0 {
		return msg.String()
	}
	runes := make([]rune, len(msg.Runes))
	for i, r := range msg.Runes {
		runes[i] = normalizeFullWidth(r)
	}
	if len(runes) == 1 && runes[0] == ' ' {
		return " "
	}
	msg.Runes = runes
	return msg.String()
}
