package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/samaelod/portgen/logging"
	"github.com/samaelod/portgen/port"
	"github.com/samaelod/portgen/types"
)

type screen int

const (
	screenPortSelect screen = iota
	screenPortView
)

const statsRefresh = time.Second

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(statsRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// deviceItem is one capture interface in the picker.
type deviceItem struct {
	name string
	desc string
}

func (d deviceItem) Title() string       { return d.name }
func (d deviceItem) Description() string { return d.desc }
func (d deviceItem) FilterValue() string { return d.name }

// Options carries what main parsed off the command line.
type Options struct {
	StreamFile    string // Lua stream script compiled into the transmitter
	ReplayFile    string // capture file replayed through the transmitter
	CaptureFilter string // BPF filter for the capturer
}

type Model struct {
	screen screen
	opts   Options

	deviceList list.Model

	log        *logging.Logger
	activePort *port.Port
	streamCfg  *types.StreamConfig
	stats      types.StatsSnapshot

	logViewport viewport.Model
	err         error
	status      string

	width   int
	height  int
	version string
}

const (
	minWindowWidth  = 60
	minWindowHeight = 16
)

// nullDeviceManager stands in when no device emulator is attached: it
// just logs what the control plane would have handled.
type nullDeviceManager struct {
	log *logging.Logger
}

func (n *nullDeviceManager) ReceivePacket(buf *port.PacketBuffer) {
	n.log.Logf("emulation: received %d byte control packet (no device manager attached)",
		buf.Length())
}
