package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	pipeline "github.com/koscakluka/voicepipe/core"
)

// Messages bridged from the pipeline's run callbacks into the UI loop.
type (
	interimTranscriptMsg string
	transcriptMsg        string
	responseDeltaMsg     string
	responseEndMsg       string
	spokenTextMsg        string
	turnStateMsg         pipeline.TurnState
	turnMetricsMsg       pipeline.TurnMetrics
	cancellationMsg      struct{}
	chunkSkippedMsg      struct {
		index  int
		reason string
	}
	pipelineErrMsg     struct{ err error }
	pipelineStoppedMsg struct{ err error }
	captureToggledMsg  struct {
		capturing bool
		err       error
	}
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	youStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	captionStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	faintStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	recStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

var stateStyles = map[pipeline.TurnState]lipgloss.Style{
	pipeline.TurnStateIdle:         faintStyle,
	pipeline.TurnStateCapturing:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	pipeline.TurnStateTranscribing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	pipeline.TurnStateGenerating:   lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
	pipeline.TurnStateSpeaking:     lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
	pipeline.TurnStateAborted:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
}

// entry is one committed conversation line.
type entry struct {
	fromUser    bool
	text        string
	interrupted bool
}

type model struct {
	coordinator *pipeline.Coordinator
	providers   providerSummary

	viewport viewport.Model
	spinner  spinner.Model
	ready    bool
	width    int

	capturing bool
	state     pipeline.TurnState
	entries   []entry
	caption   string
	pending   string
	spoken    string
	notice    string
	lastErr   error
	metrics   *pipeline.TurnMetrics

	// fatal is set when the pipeline loop exits with an error; run()
	// reports it after the UI shuts down.
	fatal error
}

func newModel(coordinator *pipeline.Coordinator, providers providerSummary) model {
	sp := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))),
	)
	return model{
		coordinator: coordinator,
		providers:   providers,
		spinner:     sp,
		state:       pipeline.TurnStateIdle,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			return m, m.toggleCapture()
		case "esc":
			m.coordinator.CancelTurn()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - chromeHeight
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()
		return m, nil

	case captureToggledMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.capturing = msg.capturing
		if !m.capturing {
			m.caption = ""
			m.refresh()
		}
		return m, nil

	case interimTranscriptMsg:
		m.caption = string(msg)
		m.refresh()
		return m, nil

	case transcriptMsg:
		m.entries = append(m.entries, entry{fromUser: true, text: string(msg)})
		m.caption = ""
		m.refresh()
		return m, nil

	case responseDeltaMsg:
		m.pending += string(msg)
		m.refresh()
		return m, nil

	case responseEndMsg:
		// The full response is authoritative over accumulated deltas.
		m.pending = string(msg)
		m.refresh()
		return m, nil

	case spokenTextMsg:
		m.spoken = string(msg)
		return m, nil

	case cancellationMsg:
		m.commitPending(true)
		m.refresh()
		return m, nil

	case turnStateMsg:
		m.state = pipeline.TurnState(msg)
		switch m.state {
		case pipeline.TurnStateGenerating:
			m.notice = ""
			m.lastErr = nil
		case pipeline.TurnStateIdle:
			m.commitPending(false)
		}
		m.refresh()
		return m, nil

	case turnMetricsMsg:
		metrics := pipeline.TurnMetrics(msg)
		m.metrics = &metrics
		return m, nil

	case chunkSkippedMsg:
		m.notice = fmt.Sprintf("skipped speech chunk %d: %s", msg.index, msg.reason)
		return m, nil

	case pipelineErrMsg:
		m.lastErr = msg.err
		return m, nil

	case pipelineStoppedMsg:
		m.fatal = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// chromeHeight is the rows taken by the header, status, and help lines.
const chromeHeight = 3

func (m model) toggleCapture() tea.Cmd {
	coordinator := m.coordinator
	if m.capturing {
		return func() tea.Msg {
			return captureToggledMsg{capturing: false, err: coordinator.StopCapture()}
		}
	}
	return func() tea.Msg {
		return captureToggledMsg{capturing: true, err: coordinator.StartCapture()}
	}
}

// commitPending moves the streamed response into the transcript. A
// cancelled turn keeps what was actually spoken when that is known.
func (m *model) commitPending(interrupted bool) {
	text := m.pending
	if interrupted && m.spoken != "" {
		text = m.spoken
	}
	if text != "" {
		m.entries = append(m.entries, entry{text: text, interrupted: interrupted})
	}
	m.pending = ""
	m.spoken = ""
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m model) renderConversation() string {
	wrapWidth := m.viewport.Width - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var b strings.Builder
	if len(m.entries) == 0 && m.caption == "" && m.pending == "" {
		b.WriteString(faintStyle.Render("Press enter and start speaking."))
		b.WriteString("\n")
	}

	for _, e := range m.entries {
		label := assistantStyle.Render("assistant")
		if e.fromUser {
			label = youStyle.Render("you")
		}
		text := e.text
		if e.interrupted {
			text += faintStyle.Render(" (interrupted)")
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(indent.String(wordwrap.String(text, wrapWidth), 2))
		b.WriteString("\n\n")
	}

	if m.caption != "" {
		b.WriteString(youStyle.Render("you"))
		b.WriteString("\n")
		b.WriteString(indent.String(captionStyle.Render(m.caption+" …"), 2))
		b.WriteString("\n\n")
	}

	if m.pending != "" {
		b.WriteString(assistantStyle.Render("assistant"))
		b.WriteString("\n")
		b.WriteString(indent.String(wordwrap.String(m.pending+" ▌", wrapWidth), 2))
		b.WriteString("\n")
	}

	return b.String()
}

func (m model) View() string {
	if !m.ready {
		return "\n  starting…"
	}
	return m.headerView() + "\n" + m.viewport.View() + "\n" + m.statusView() + "\n" + m.helpView()
}

func (m model) headerView() string {
	title := titleStyle.Render("voicepipe")
	stack := faintStyle.Render(fmt.Sprintf(" %s · %s · %s · %s",
		m.providers.llm, m.providers.stt, m.providers.tts, m.providers.device))
	return truncate.StringWithTail(title+stack, uint(max(m.width, 1)), "…")
}

func (m model) statusView() string {
	parts := []string{m.stateBadge()}

	if m.capturing {
		parts = append(parts, recStyle.Render("● rec"))
	}
	if m.metrics != nil {
		if line := formatMetrics(*m.metrics); line != "" {
			parts = append(parts, faintStyle.Render(line))
		}
	}
	if m.notice != "" {
		parts = append(parts, noticeStyle.Render(m.notice))
	}
	if m.lastErr != nil {
		parts = append(parts, errorStyle.Render(m.lastErr.Error()))
	}

	return truncate.StringWithTail(strings.Join(parts, "  "), uint(max(m.width, 1)), "…")
}

func (m model) stateBadge() string {
	style, ok := stateStyles[m.state]
	if !ok {
		style = faintStyle
	}
	badge := style.Render(m.state.String())
	if m.busy() {
		return m.spinner.View() + " " + badge
	}
	return badge
}

func (m model) busy() bool {
	switch m.state {
	case pipeline.TurnStateTranscribing, pipeline.TurnStateGenerating, pipeline.TurnStateSpeaking:
		return true
	}
	return false
}

func (m model) helpView() string {
	return faintStyle.Render("enter record · esc cancel · ctrl+c quit")
}

func formatMetrics(metrics pipeline.TurnMetrics) string {
	var parts []string
	if d := metrics.TranscriptToFirstAudio(); d > 0 {
		parts = append(parts, "first audio "+d.Round(10*time.Millisecond).String())
	}
	if d := metrics.Duration(); d > 0 {
		parts = append(parts, "turn "+d.Round(10*time.Millisecond).String())
	}
	if metrics.SkippedChunks > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", metrics.SkippedChunks))
	}
	return strings.Join(parts, " · ")
}
