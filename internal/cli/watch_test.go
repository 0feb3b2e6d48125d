package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/dataflow/pkg/network"
)

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds keys to the model and returns the final model and command.
func press(m watchModel, keys ...string) (watchModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(watchModel)
	}
	return m, cmd
}

func TestWatchModel_Navigation(t *testing.T) {
	f := newFixture(t)
	m := newWatchModel("pipeline.toml", f.net, f.ev)

	if len(m.rows) != 7 || m.rows[0].id != "Blur" {
		t.Fatalf("rows = %+v", m.rows)
	}
	m, _ = press(m, "k")
	if m.cursor != 0 {
		t.Errorf("cursor moved above the first row: %d", m.cursor)
	}
	m, _ = press(m, "j", "j", "j")
	if m.cursor != 3 || m.rows[m.cursor].id != "Noise" {
		t.Errorf("cursor = %d (%s), want Noise", m.cursor, m.rows[m.cursor].id)
	}
	m, _ = press(m, "j", "j", "j", "j", "j")
	if m.cursor != 6 {
		t.Errorf("cursor moved past the last row: %d", m.cursor)
	}
}

func TestWatchModel_Invalidate(t *testing.T) {
	f := newFixture(t)
	m := newWatchModel("pipeline.toml", f.net, f.ev)

	m, _ = press(m, "j", "i") // Heightfield
	n, _ := f.net.Processor("Heightfield")
	if n.State() != network.Invalid {
		t.Errorf("Heightfield state = %v, want invalid", n.State())
	}
	if m.message != "invalidated Heightfield" {
		t.Errorf("message = %q", m.message)
	}
	if !strings.Contains(m.View(), "invalid") {
		t.Error("view does not show the invalid state")
	}
}

func TestWatchModel_Reseed(t *testing.T) {
	f := newFixture(t)
	m := newWatchModel("pipeline.toml", f.net, f.ev)

	m, _ = press(m, "r") // Blur has no seed
	if m.message != "Blur has no seed" {
		t.Errorf("message = %q", m.message)
	}

	m, _ = press(m, "j", "j", "j", "r")
	if m.message != "reseeded Noise to 4" {
		t.Errorf("message = %q", m.message)
	}
	n, _ := f.net.Processor("Noise")
	if n.State() != network.Invalid {
		t.Errorf("Noise state = %v, want invalid", n.State())
	}
}

func TestWatchModel_Quit(t *testing.T) {
	f := newFixture(t)
	m := newWatchModel("pipeline.toml", f.net, f.ev)

	_, cmd := press(m, "q")
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit key did not return tea.Quit")
	}
}

func TestWatchModel_View(t *testing.T) {
	f := newFixture(t)
	m := newWatchModel("pipeline.toml", f.net, f.ev)

	view := m.View()
	for _, want := range []string{"Watching pipeline.toml", "Persist", "7 processors", "quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}
