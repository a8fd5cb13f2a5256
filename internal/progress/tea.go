package progress

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	Abort key.Binding
}

var keys = keyMap{
	Abort: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "abort"),
	),
}

type tickMsg struct{}
type stopMsg struct{}

type receiverTeaModel struct {
	viewFn      func() ReceiverView
	onInterrupt func()
	view        ReceiverView
}

func (m receiverTeaModel) Init() tea.Cmd {
	return nil
}

func (m receiverTeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Abort) {
			if m.onInterrupt == nil {
				os.Exit(130)
			}
			m.onInterrupt()
		}
	case tickMsg:
		m.view = m.viewFn()
		return m, nil
	case stopMsg:
		m.view = m.viewFn()
		return m, tea.Quit
	}
	return m, nil
}

func (m receiverTeaModel) View() string {
	help := keys.Abort.Help()
	return renderReceiverTTY(m.view) + "\n" + helpStyle.Render(help.Key+" to "+help.Desc)
}

func renderReceiverTea(ctx context.Context, w io.Writer, view func() ReceiverView, onInterrupt func()) func() {
	model := receiverTeaModel{viewFn: view, onInterrupt: onInterrupt, view: view()}
	program := tea.NewProgram(model, tea.WithOutput(w), tea.WithAltScreen())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_, _ = program.Run()
	}()
	ticker := time.NewTicker(250 * time.Millisecond)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				program.Send(stopMsg{})
				return
			case <-stop:
				return
			case <-ticker.C:
				program.Send(tickMsg{})
			}
		}
	}()
	return func() {
		close(stop)
		ticker.Stop()
		program.Send(stopMsg{})
		<-exited
	}
}
