package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.width < minWindowWidth || m.height < minWindowHeight {
		return styleError.Render("window too small")
	}

	switch m.screen {
	case screenPortSelect:
		return m.viewPortSelect()
	case screenPortView:
		return m.viewPortView()
	}
	return ""
}

func (m Model) viewPortSelect() string {
	title := styleAppTitle.Render(fmt.Sprintf("portgen %s", m.version))
	help := styleHelp.Render("enter: open port · q: quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		stylePanel.Render(m.deviceList.View()),
		help,
	)
}

func (m Model) viewPortView() string {
	if m.activePort == nil {
		return styleError.Render("no port open")
	}

	p := m.activePort

	var b strings.Builder

	b.WriteString(styleTitle.Render(p.Name()) + "\n")
	if p.Description() != "" {
		b.WriteString(styleLabel.Render("description") + styleValue.Render(p.Description()) + "\n")
	}

	b.WriteString(styleLabel.Render("rx") +
		styleValue.Render(fmt.Sprintf("%d pkts / %d bytes", m.stats.RxPkts, m.stats.RxBytes)) + "\n")
	b.WriteString(styleLabel.Render("tx") +
		styleValue.Render(fmt.Sprintf("%d pkts / %d bytes", m.stats.TxPkts, m.stats.TxBytes)) + "\n")

	b.WriteString(styleLabel.Render("transmit") + runState(p.Transmitter().IsRunning()) + "\n")
	b.WriteString(styleLabel.Render("capture") + runState(p.Capturer().IsRunning()) + "\n")

	if p.Notes() != "" {
		b.WriteString(styleNotes.Render(p.Notes()) + "\n")
	}
	if m.status != "" {
		b.WriteString(styleValue.Render(m.status) + "\n")
	}
	if m.err != nil {
		b.WriteString(styleError.Render(m.err.Error()) + "\n")
	}

	statsPanel := stylePanel.Render(b.String())
	logsPanel := stylePanel.Render(m.logViewport.View())
	help := styleHelp.Render(
		"t: transmit · c: capture · e/E: emulation on/off · s: save streams · esc: back · q: quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		styleAppTitle.Render(fmt.Sprintf("portgen %s", m.version)),
		statsPanel,
		logsPanel,
		help,
	)
}

func runState(running bool) string {
	if running {
		return styleRunning.Render("running")
	}
	return styleStopped.Render("stopped")
}
