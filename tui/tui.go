package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/gopacket/pcap"

	"github.com/samaelod/portgen/config"
	"github.com/samaelod/portgen/logging"
)

func New(version string, opts Options) (Model, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return Model{}, fmt.Errorf("listing interfaces: %w", err)
	}

	items := make([]list.Item, 0, len(ifs))
	for _, iface := range ifs {
		items = append(items, deviceItem{name: iface.Name, desc: iface.Description})
	}

	dl := list.New(items, list.NewDefaultDelegate(), 0, 0)
	dl.Title = "Select port"
	dl.SetShowHelp(false)

	appCfg, _ := config.LoadDefault()

	return Model{
		screen:     screenPortSelect,
		opts:       opts,
		deviceList: dl,
		log:        logging.NewLogger("", appCfg.LogLines),
		version:    version,
	}, nil
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func Run(version string, opts Options) error {
	m, err := New(version, opts)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(Model); ok && fm.activePort != nil {
		fm.activePort.Close()
	}
	return err
}
