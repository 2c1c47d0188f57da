package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grain-surface/debug"
	"grain-surface/midi"
	"grain-surface/params"
	"grain-surface/preset"
	"grain-surface/protocol"
	"grain-surface/surface"
	"grain-surface/theme"
	"grain-surface/widgets"
	"grain-surface/windowsync"
)

const (
	labelWidth = 18
	barWidth   = 28
	plotWidth  = 56
	plotHeight = 8
	respHeight = 5
)

type promptMode int

const (
	promptNone promptMode = iota
	promptSave
	promptLoad
)

type Model struct {
	Surface    *surface.Surface
	DeviceMgr  *midi.DeviceManager // nil on the loopback engine
	Theme      *theme.Theme
	Mapper     *midi.Mapper
	SampleRate float64

	frame       surface.Frame
	hasFrame    bool
	focus       int
	prompt      textinput.Model
	mode        promptMode
	status      string
	engine      string
	controllers map[string]bool
	showHelp    bool
	quitting    bool
}

// FrameMsg carries the latest surface frame
type FrameMsg surface.Frame

type DeviceEventMsg midi.DeviceEvent

// devicesClosedMsg reports that the device manager has stopped
type devicesClosedMsg struct{}

type presetMsg struct {
	status string
	err    error
}

func NewModel(s *surface.Surface, deviceMgr *midi.DeviceManager, th *theme.Theme, mapper *midi.Mapper, sampleRate float64) Model {
	ti := textinput.New()
	ti.Placeholder = "preset name"
	ti.CharLimit = 64
	ti.Width = 32
	return Model{
		Surface:     s,
		DeviceMgr:   deviceMgr,
		Theme:       th,
		Mapper:      mapper,
		SampleRate:  sampleRate,
		prompt:      ti,
		controllers: make(map[string]bool),
	}
}

// Content returns the content index of the last frame shown
func (m Model) Content() int {
	return m.frame.Content
}

func ListenForFrames(s *surface.Surface) tea.Cmd {
	return func() tea.Msg {
		return FrameMsg(<-s.Frames())
	}
}

func ListenForDevices(events <-chan midi.DeviceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return devicesClosedMsg{}
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForFrames(m.Surface)}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr.Events()))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode != promptNone {
			return m.updatePrompt(msg)
		}
		return m.handleKey(msg)

	case FrameMsg:
		m.frame = surface.Frame(msg)
		m.hasFrame = true
		if m.focus >= len(m.frame.Fields) {
			m.focus = 0
		}
		return m, ListenForFrames(m.Surface)

	case presetMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = msg.status
		}

	case DeviceEventMsg:
		m.handleDevice(midi.DeviceEvent(msg))
		if m.DeviceMgr == nil {
			return m, nil
		}
		return m, ListenForDevices(m.DeviceMgr.Events())

	case devicesClosedMsg:
		m.engine = ""
		m.controllers = make(map[string]bool)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.focus > 0 {
			m.focus--
		}

	case "down", "j":
		if m.focus < len(m.frame.Fields)-1 {
			m.focus++
		}

	case "left", "h":
		m.nudge(-1)
	case "right", "l":
		m.nudge(1)
	case "H":
		m.nudge(-10)
	case "L":
		m.nudge(10)

	case "1", "2", "3", "4":
		m.Surface.SelectShape(protocol.Shape(key[0] - '1'))

	case "[":
		m.Surface.Nudge(params.WindowModifier, -5)
	case "]":
		m.Surface.Nudge(params.WindowModifier, 5)

	case "n":
		if m.frame.Content+1 < m.frame.Contents {
			m.Surface.SwitchContent(m.frame.Content + 1)
		}
	case "p":
		if m.frame.Content > 0 {
			m.Surface.SwitchContent(m.frame.Content - 1)
		}

	case "s":
		m.openPrompt(promptSave, "save as: ")
		return m, textinput.Blink
	case "o":
		m.openPrompt(promptLoad, "load: ")
		return m, textinput.Blink

	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) nudge(steps int) {
	if m.focus < len(m.frame.Fields) {
		m.Surface.Nudge(m.frame.Fields[m.focus].Name, steps)
	}
}

func (m *Model) openPrompt(mode promptMode, label string) {
	m.mode = mode
	m.prompt.Prompt = label
	m.prompt.SetValue("")
	m.prompt.Focus()
	if mode == promptLoad {
		if names, err := preset.List(); err == nil && len(names) > 0 {
			m.status = "presets: " + strings.Join(names, " ")
		}
	}
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = promptNone
		m.prompt.Blur()
		return m, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(m.prompt.Value())
		mode := m.mode
		m.mode = promptNone
		m.prompt.Blur()
		if name == "" {
			return m, nil
		}
		if mode == promptSave {
			return m, savePreset(name, m.frame)
		}
		return m, loadPreset(name, m.Surface, m.frame)
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *Model) handleDevice(event midi.DeviceEvent) {
	switch event.Type {
	case midi.EngineConnected:
		m.engine = event.ID
		m.Surface.Reconnect()
	case midi.EngineDisconnected:
		m.engine = ""
	case midi.ControllerConnected:
		m.controllers[event.ID] = true
		if event.Controller != nil && m.Mapper != nil {
			// Forward knob turns until the controller is closed
			go forwardCC(event.Controller, m.Mapper, m.Surface)
		}
	case midi.ControllerDisconnected:
		delete(m.controllers, event.ID)
	}
}

func forwardCC(c *midi.Controller, mapper *midi.Mapper, s *surface.Surface) {
	for ev := range c.Events() {
		if name, norm, ok := mapper.Resolve(ev); ok {
			s.SetNorm(name, norm)
		}
	}
	debug.Log("tui", "controller %s closed", c.ID())
}

// savePreset stores the values of the frame on screen
func savePreset(name string, f surface.Frame) tea.Cmd {
	values := make(map[string]float64, len(f.Fields))
	for _, fv := range f.Fields {
		values[fv.Name] = fv.Value
	}
	return func() tea.Msg {
		if err := preset.Save(name, values); err != nil {
			return presetMsg{err: err}
		}
		return presetMsg{status: "saved " + name}
	}
}

// loadPreset applies every field the preset names that the surface knows
func loadPreset(name string, s *surface.Surface, f surface.Frame) tea.Cmd {
	fields := make([]string, len(f.Fields))
	for i, fv := range f.Fields {
		fields[i] = fv.Name
	}
	return func() tea.Msg {
		p, err := preset.Load(name)
		if err != nil {
			return presetMsg{err: err}
		}
		values, err := p.Known(fields)
		s.Apply(values)
		if err != nil {
			return presetMsg{status: fmt.Sprintf("loaded %s, skipped %v", name, err)}
		}
		return presetMsg{status: "loaded " + name}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	textStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	cursorStyle := lipgloss.NewStyle().Foreground(m.Theme.Cursor()).Bold(true)
	plotStyle := lipgloss.NewStyle().Foreground(m.Theme.Success())
	respStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	statusStyle := lipgloss.NewStyle().
		Foreground(m.Theme.FG()).
		Background(m.Theme.Surface()).
		Padding(0, 1)

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(m.header()))
	out.WriteString("\n\n")

	if !m.hasFrame {
		out.WriteString(dimStyle.Render("waiting for the first frame..."))
		out.WriteString("\n")
		return out.String()
	}

	for i, fv := range m.frame.Fields {
		bar := widgets.Bar(fv.Norm, barWidth, m.Theme.Symbols.Fill, m.Theme.Symbols.Track)
		if fv.Name == params.WindowShape || fv.Name == params.ContentIndex {
			bar = widgets.Knob(fv.Norm, barWidth, m.Theme.Symbols.Knob, m.Theme.Symbols.Track)
		}
		line := fmt.Sprintf("%-*s %s %s", labelWidth, fv.Label, bar, fv.Text)
		if i == m.focus {
			out.WriteString(cursorStyle.Render("> " + line))
		} else {
			out.WriteString(textStyle.Render("  " + line))
		}
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render(m.windowTitle()))
	out.WriteString("\n")
	if m.frame.HasWindow {
		for _, line := range widgets.WindowPlot(m.frame.Window.Samples, plotWidth, plotHeight, m.Theme.Symbols.Dot) {
			out.WriteString(plotStyle.Render(line))
			out.WriteString("\n")
		}
	} else {
		out.WriteString(dimStyle.Render("no window yet"))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render("filter response (0 to -48 dB, 20 Hz to 20 kHz)"))
	out.WriteString("\n")
	for _, line := range widgets.ResponsePlot(m.filters(), plotWidth, respHeight, m.Theme.Symbols.Dot) {
		out.WriteString(respStyle.Render(line))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	if m.mode != promptNone {
		out.WriteString(m.prompt.View())
		out.WriteString("\n")
	}
	if m.status != "" {
		out.WriteString(statusStyle.Render(m.status))
		out.WriteString("\n")
	}

	if m.showHelp {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp)))
	} else {
		out.WriteString(dimStyle.Render("j/k:field  h/l:adjust  1-4:shape  [/]:modifier  n/p:content  s/o:preset  ?:help  q:quit"))
	}

	return out.String()
}

func (m Model) header() string {
	sym := m.Theme.Symbols.Running
	switch m.frame.State {
	case windowsync.AwaitingStabilization:
		sym = m.Theme.Symbols.Awaiting
	case windowsync.Suspended:
		sym = m.Theme.Symbols.Suspended
	}

	content := m.frame.Name
	if content == "" {
		content = fmt.Sprintf("#%d", m.frame.Content)
	}
	if m.frame.Bound > 0 {
		content += fmt.Sprintf(" (%d smp)", m.frame.Bound)
	} else {
		content += " (loading)"
	}

	devices := ""
	if m.DeviceMgr != nil {
		engine := m.engine
		if engine == "" {
			engine = "offline"
		}
		devices = "  engine:" + engine
		if len(m.controllers) > 0 {
			ids := make([]string, 0, len(m.controllers))
			for id := range m.controllers {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			devices += "  cc:" + strings.Join(ids, ",")
		}
	}

	return fmt.Sprintf("grain-surface  %c %s  %s%s", sym, m.frame.State, content, devices)
}

func (m Model) windowTitle() string {
	shape, _ := m.frame.Field(params.WindowShape)
	if !m.frame.HasWindow {
		return "window: " + shape.Text
	}
	return fmt.Sprintf("window: %s, %d points (v%d)", shape.Text, m.frame.Window.Length, m.frame.Window.Version)
}

func (m Model) filters() widgets.FilterSettings {
	value := func(name string) float64 {
		fv, _ := m.frame.Field(name)
		return fv.Value
	}
	return widgets.FilterSettings{
		LowpassHz:  value(params.LowpassCutoff),
		LowpassQ:   value(params.LowpassQ),
		HighpassHz: value(params.HighpassCutoff),
		HighpassQ:  value(params.HighpassQ),
		SampleRate: m.SampleRate,
	}
}

var keyHelp = []widgets.KeySection{
	{Title: "Fields", Keys: []widgets.KeyBinding{
		{Key: "j/k", Desc: "focus next / previous"},
		{Key: "h/l", Desc: "nudge down / up"},
		{Key: "H/L", Desc: "nudge by ten steps"},
	}},
	{Title: "Window", Keys: []widgets.KeyBinding{
		{Key: "1-4", Desc: "Hann, Tukey, Gaussian, Trapezoidal"},
		{Key: "[ ]", Desc: "modifier down / up"},
	}},
	{Title: "Session", Keys: []widgets.KeyBinding{
		{Key: "n/p", Desc: "next / previous content"},
		{Key: "s", Desc: "save preset"},
		{Key: "o", Desc: "load preset"},
		{Key: "q", Desc: "quit"},
	}},
}
