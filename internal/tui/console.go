package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/posctl/internal/telemetry"
	"github.com/san-kum/posctl/internal/tuning"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 2)
)

const (
	refreshInterval = 50 * time.Millisecond
	historyLen      = 60
	statusTTL       = 3 * time.Second
)

// PressFunc delivers a named operator button to the control loop.
type PressFunc func(button string) error

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Console is the operator view of one actuator: live telemetry, the gains
// as the dashboard holds them, and the three operator buttons.
type Console struct {
	table  *telemetry.Table
	press  PressFunc
	name   string
	params []tuning.Param

	cursor  int
	editing bool
	editBuf string

	history []float64
	status  string
	isError bool
	statusT time.Time
	now     time.Time

	width  int
	height int
}

// NewConsole builds the console for actuator name. params lists the gain keys
// to offer for editing; it may be empty when the loop runs open loop.
func NewConsole(table *telemetry.Table, press PressFunc, name string, params []tuning.Param) *Console {
	return &Console{
		table:   table,
		press:   press,
		name:    name,
		params:  params,
		history: make([]float64, 0, historyLen),
		width:   80,
		height:  24,
	}
}

func (c Console) Init() tea.Cmd { return tick() }

func (c Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return c.handleKey(msg)
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		return c, nil
	case tickMsg:
		c.now = time.Time(msg)
		c.sample()
		return c, tick()
	}
	return c, nil
}

func (c *Console) sample() {
	pos, ok := c.table.Number(telemetry.Key(c.name, telemetry.SuffixPosition))
	if !ok {
		return
	}
	if len(c.history) == historyLen {
		copy(c.history, c.history[1:])
		c.history = c.history[:historyLen-1]
	}
	c.history = append(c.history, pos)
}

func (c Console) handleKey(msg tea.KeyMsg) (Console, tea.Cmd) {
	if c.editing {
		return c.editKey(msg)
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return c, tea.Quit
	case "b":
		c.send("toggle")
	case "x":
		c.send("decrease")
	case "y":
		c.send("increase")
	case "up", "k":
		if c.cursor > 0 {
			c.cursor--
		}
	case "down", "j", "tab":
		if len(c.params) > 0 {
			c.cursor = (c.cursor + 1) % len(c.params)
		}
	case "enter":
		if len(c.params) == 0 {
			return c, nil
		}
		c.editing = true
		c.editBuf = strconv.FormatFloat(c.gain(c.cursor), 'g', -1, 64)
	}
	return c, nil
}

func (c Console) editKey(msg tea.KeyMsg) (Console, tea.Cmd) {
	switch msg.String() {
	case "enter":
		c.commit()
	case "esc":
		c.editing = false
		c.editBuf = ""
	case "backspace":
		if len(c.editBuf) > 0 {
			c.editBuf = c.editBuf[:len(c.editBuf)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 {
			ch := s[0]
			if (ch >= '0' && ch <= '9') || ch == '.' || ch == '-' || ch == 'e' {
				c.editBuf += s
			}
		}
	}
	return c, nil
}

func (c *Console) commit() {
	p := c.params[c.cursor]
	v, err := strconv.ParseFloat(c.editBuf, 64)
	c.editing = false
	c.editBuf = ""
	if err != nil {
		c.setStatus(fmt.Sprintf("%s: not a number", p.Name), true)
		return
	}
	c.table.SetNumber(p.Key, v)
	c.setStatus(fmt.Sprintf("%s = %g", p.Name, v), false)
}

func (c *Console) send(button string) {
	if c.press == nil {
		c.setStatus("no control loop attached", true)
		return
	}
	if err := c.press(button); err != nil {
		c.setStatus(err.Error(), true)
		return
	}
	c.setStatus(button, false)
}

func (c *Console) setStatus(s string, isError bool) {
	c.status = s
	c.isError = isError
	c.statusT = c.now
}

// gain reads the dashboard value for param i, falling back to the value the
// console was built with.
func (c Console) gain(i int) float64 {
	p := c.params[i]
	if v, ok := c.table.Number(p.Key); ok {
		return v
	}
	return p.Value
}

func (c Console) View() string {
	var b strings.Builder

	enabled, _ := c.table.Bool(telemetry.KeyMotorEnabled)
	icon, mode := yellow.Render("○"), yellow.Render("disabled")
	if enabled {
		icon, mode = green.Render("●"), green.Render("enabled")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", icon, cyan.Render(c.name), mode))
	b.WriteString(dimmer.Render("   "+strings.Repeat("─", 40)) + "\n")

	b.WriteString(panel.Render(c.readouts()) + "\n")

	if len(c.history) > 1 {
		graph := asciigraph.Plot(c.history,
			asciigraph.Height(6),
			asciigraph.Width(historyLen),
			asciigraph.Precision(2),
		)
		b.WriteString(cyan.Render(indent(graph, "   ")) + "\n")
	}

	if len(c.params) > 0 {
		b.WriteString("\n" + dim.Render("   gains") + "\n")
		for i, p := range c.params {
			val := fmt.Sprintf("%10.4g", c.gain(i))
			if c.editing && i == c.cursor {
				val = fmt.Sprintf("%10s", c.editBuf+"▋")
			}
			if i == c.cursor {
				b.WriteString("   " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-12s", p.Name)) + magenta.Render(val) + "\n")
			} else {
				b.WriteString("     " + dim.Render(fmt.Sprintf("%-12s", p.Name)) + dim.Render(val) + "\n")
			}
		}
	}

	if c.status != "" && c.now.Sub(c.statusT) < statusTTL {
		style := dim
		if c.isError {
			style = red
		}
		b.WriteString("\n   " + style.Render(c.status) + "\n")
	}

	b.WriteString("\n" + dim.Render("   b toggle  x decrease  y increase  tab select  enter edit  q quit") + "\n")
	return b.String()
}

func (c Console) readouts() string {
	rows := []struct{ label, key string }{
		{"position", telemetry.Key(c.name, telemetry.SuffixPosition)},
		{"target", telemetry.KeyTargetPosition},
		{"total delta", telemetry.Key(c.name, telemetry.SuffixTotalDelta)},
		{"rotation", telemetry.Key(c.name, telemetry.SuffixRotation)},
	}
	var b strings.Builder
	for i, r := range rows {
		val := dimmer.Render("       --")
		if v, ok := c.table.Number(r.key); ok {
			val = white.Render(fmt.Sprintf("%9.4f", v))
		}
		b.WriteString(dim.Render(fmt.Sprintf("%-12s", r.label)) + val)
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// Run shows the console until the operator quits.
func Run(c *Console) error {
	p := tea.NewProgram(c, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
