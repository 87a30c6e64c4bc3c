package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit        key.Binding
	toggleHelp  key.Binding
	moveUp      key.Binding
	moveDown    key.Binding
	choose      key.Binding
	toggleTask  key.Binding
	reasonPrev  key.Binding
	reasonNext  key.Binding
	editOther   key.Binding
	submit      key.Binding
	skip        key.Binding
	back        key.Binding
	refreshRisk key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		toggleHelp:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		moveDown:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		choose:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "choose")),
		toggleTask:  key.NewBinding(key.WithKeys("space", " "), key.WithHelp("space", "productive/delayed")),
		reasonPrev:  key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "prev reason")),
		reasonNext:  key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "next reason")),
		editOther:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "edit other text")),
		submit:      key.NewBinding(key.WithKeys("S", "ctrl+s"), key.WithHelp("S", "submit")),
		skip:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "skip today")),
		back:        key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
		refreshRisk: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh risk")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.moveUp, k.moveDown, k.choose, k.submit, k.skip, k.toggleHelp, k.quit}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.choose, k.back, k.toggleHelp, k.quit},
		{k.toggleTask, k.reasonPrev, k.reasonNext, k.editOther},
		{k.submit, k.skip, k.refreshRisk},
	}
}
