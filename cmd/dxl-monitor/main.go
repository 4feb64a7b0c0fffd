// Command dxl-monitor shows a live chart of servo positions on the bus,
// one colored trace per servo ID.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/edaniels/golog"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/dynamixel/pkg/dxl"
	"github.com/gwillem/dynamixel/pkg/monitor"
	"github.com/gwillem/dynamixel/pkg/serialbus"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// servoColors is cycled by servo ID so traces stay distinguishable.
var servoColors = []string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
	"201", // magenta
	"93",  // purple
	"33",  // blue
}

func colorFor(id int) string {
	return servoColors[id%len(servoColors)]
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	mon           *monitor.Monitor
	ids           []int
	chart         *streamlinechart.Model
	width         int
	height        int
	logs          []string
	quitting      bool
	lastPositions map[int]float64 // previous sample, to freeze the chart when idle
}

func (m *model) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *model) hasMovement(positions map[int]float64) bool {
	if m.lastPositions == nil {
		return true
	}
	for id, pos := range positions {
		if last, ok := m.lastPositions[id]; !ok || pos != last {
			return true
		}
	}
	return false
}

type stateMsg monitor.State
type logMsg string

func waitForState(mon *monitor.Monitor) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-mon.States())
	}
}

func waitForLog(mon *monitor.Monitor) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-mon.Logs())
	}
}

func (m *model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *model) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialModel(mon *monitor.Monitor, ids []int) model {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 360),
	)
	for _, id := range ids {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(colorFor(id)))
		chart.SetDataSetStyles(traceName(id), runes.ThinLineStyle, style)
	}
	return model{
		mon:   mon,
		ids:   ids,
		chart: &chart,
	}
}

func traceName(id int) string {
	return fmt.Sprintf("servo %d", id)
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.mon),
		waitForLog(m.mon),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := monitor.State(msg)
		if state.Error != nil {
			m.addLog(fmt.Sprintf("read error: %v", state.Error))
			return m, waitForState(m.mon)
		}
		if state.Positions != nil && m.hasMovement(state.Positions) {
			// Deterministic push order keeps traces stable.
			ids := make([]int, 0, len(state.Positions))
			for id := range state.Positions {
				ids = append(ids, id)
			}
			sort.Ints(ids)
			for _, id := range ids {
				m.chart.PushDataSet(traceName(id), state.Positions[id])
			}
			m.chart.DrawAll()
			m.lastPositions = state.Positions
		}
		return m, waitForState(m.mon)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.mon)
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Monitoring stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Dynamixel Monitor"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.mon.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m model) renderLegend() string {
	var items []string
	for _, id := range m.ids {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(colorFor(id))).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+traceName(id))
	}
	return strings.Join(items, "  ")
}

func main() {
	var (
		port     = flag.String("port", "", "Serial port (optional if dxl.json exists)")
		baudrate = flag.Int("baud", 0, "Bus baudrate (optional if dxl.json exists)")
		hz       = flag.Int("hz", 20, "Polling frequency")
	)
	flag.Parse()

	cfg := dxl.Config{Port: *port, Baudrate: *baudrate}
	if cfg.Port == "" {
		loaded, err := dxl.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "No port specified and cannot load %s: %v\n", dxl.DefaultConfigFile, err)
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "Run 'go run ./cmd/dxl-scan' to detect and configure the bus,")
			fmt.Fprintln(os.Stderr, "or specify the port with --port")
			os.Exit(1)
		}
		if *baudrate != 0 {
			loaded.Baudrate = *baudrate
		}
		cfg = loaded
		fmt.Printf("Loaded configuration from %s\n", dxl.DefaultConfigFile)
	}

	logger := golog.NewLogger("dxl-monitor")
	bus, err := serialbus.Open(serialbus.Config{Port: cfg.Port, Baudrate: cfg.Baudrate}, logger)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", cfg.Port, err)
	}

	ctrl := dxl.NewController(bus, cfg, logger)
	defer ctrl.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	if len(ctrl.IDs()) == 0 {
		log.Fatal("No servos found on the bus")
	}

	mon := monitor.New(ctrl, *hz)
	go func() {
		if err := mon.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Monitor error: %v", err)
		}
	}()

	p := tea.NewProgram(initialModel(mon, ctrl.IDs()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
