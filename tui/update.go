package tui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/samaelod/portgen/pcapreader"
	"github.com/samaelod/portgen/port"
	"github.com/samaelod/portgen/streams"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		listHeight := msg.Height - 6
		if listHeight < 5 {
			listHeight = 5
		}
		m.deviceList.SetSize(msg.Width-6, listHeight)

		vpHeight := msg.Height/2 - 4
		if vpHeight < 4 {
			vpHeight = 4
		}
		m.logViewport = viewport.New(msg.Width-6, vpHeight)
		m.refreshLogs()
		return m, nil

	case tickMsg:
		if m.activePort != nil {
			m.stats = m.activePort.Stats()
			m.refreshLogs()
		}
		return m, tick()

	case tea.KeyMsg:
		switch m.screen {
		case screenPortSelect:
			return m.updatePortSelect(msg)
		case screenPortView:
			return m.updatePortView(msg)
		}
	}

	return m, nil
}

func (m Model) updatePortSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		item, ok := m.deviceList.SelectedItem().(deviceItem)
		if !ok {
			return m, nil
		}
		m.openPort(item.name)
		m.screen = screenPortView
		return m, nil
	}

	var cmd tea.Cmd
	m.deviceList, cmd = m.deviceList.Update(msg)
	return m, cmd
}

// openPort builds the port, wires it, and preloads the transmit list
// from the stream script or replay file if one was given.
func (m *Model) openPort(device string) {
	m.err = nil
	m.status = ""

	p := port.NewPort(0, device, &nullDeviceManager{log: m.log}, m.log)
	p.Init()
	m.activePort = p

	if !p.IsUsable() {
		m.status = "port is not usable (could not open handles)"
		return
	}

	tx := p.Transmitter()
	switch {
	case m.opts.StreamFile != "":
		cfg, err := streams.ReadStreamFile(m.opts.StreamFile)
		if err != nil {
			m.err = err
			return
		}
		m.streamCfg = cfg
		if err := streams.Build(cfg, tx); err != nil {
			m.err = err
			return
		}
	case m.opts.ReplayFile != "":
		records, _, err := pcapreader.ReadRecords(m.opts.ReplayFile)
		if err != nil {
			m.err = err
			return
		}
		streams.BuildRecords(records, tx)
	}

	seqs, pkts, bytes := tx.PacketListInfo()
	m.log.Logf("%s: packet list ready: %d sequences, %d packets, %d bytes",
		device, seqs, pkts, bytes)
}

func (m Model) updatePortView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "esc":
		if m.activePort != nil {
			m.activePort.Close()
			m.activePort = nil
		}
		m.screen = screenPortSelect
		return m, nil

	case "t":
		if m.activePort == nil {
			return m, nil
		}
		tx := m.activePort.Transmitter()
		if tx.IsRunning() {
			tx.Stop()
			m.status = "transmit stopped"
		} else if err := tx.Start(); err != nil {
			m.err = err
		} else {
			m.status = "transmitting"
		}
		return m, nil

	case "c":
		if m.activePort == nil {
			return m, nil
		}
		capt := m.activePort.Capturer()
		if capt.IsRunning() {
			capt.Stop()
			m.status = "capture stopped: " + capt.CaptureFile()
		} else if err := capt.Start(m.opts.CaptureFilter); err != nil {
			m.err = err
		} else {
			m.status = "capturing to " + capt.CaptureFile()
		}
		return m, nil

	case "e":
		if m.activePort == nil {
			return m, nil
		}
		if err := m.activePort.StartDeviceEmulation(); err != nil {
			m.err = err
		} else {
			m.status = "device emulation running"
		}
		return m, nil

	case "E":
		if m.activePort != nil {
			m.activePort.StopDeviceEmulation()
			m.status = "device emulation stopped"
		}
		return m, nil

	case "s":
		if m.streamCfg == nil {
			return m, nil
		}
		path, err := streams.SaveToRecent(m.streamCfg, m.opts.StreamFile)
		if err != nil {
			m.err = err
		} else {
			m.status = "saved " + path
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

func (m *Model) refreshLogs() {
	content := m.log.ReadAll()
	atBottom := m.logViewport.AtBottom()
	m.logViewport.SetContent(content)
	if atBottom {
		m.logViewport.GotoBottom()
	}
}
