package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Input    key.Binding
	Plan     key.Binding
	Review   key.Binding
	Respond  key.Binding
	Loop     key.Binding
	Execute  key.Binding
	PrevStep key.Binding
	NextStep key.Binding
	Done     key.Binding
	Recover  key.Binding
	Tab      key.Binding
	Refresh  key.Binding
	Cancel   key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Input:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "goal")),
		Plan:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "write plan")),
		Review:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "review")),
		Respond:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "respond")),
		Loop:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "review loop")),
		Execute:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "execute step")),
		PrevStep: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev step")),
		NextStep: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next step")),
		Done:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "done")),
		Recover:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "recover")),
		Tab:      key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch tab")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Input, k.Plan, k.Review, k.Respond, k.Loop, k.Execute, k.Done, k.Tab, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Input, k.Plan, k.Review, k.Respond, k.Loop},
		{k.Execute, k.PrevStep, k.NextStep, k.Done, k.Recover},
		{k.Tab, k.Refresh, k.Cancel, k.Quit},
	}
}
