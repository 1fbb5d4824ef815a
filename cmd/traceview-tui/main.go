package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/traceview/pkg/client"
	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/mcp"
	"github.com/rmax-ai/traceview/pkg/trace"
)

const (
	pollRate       = time.Second
	viewportHeight = 20
	topLinks       = 8
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	idStyle       = lipgloss.NewStyle().Width(8).Bold(true)
	kindStyle     = lipgloss.NewStyle().Width(10).Foreground(lipgloss.Color("241"))
	groupStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("99")) // Purple
	activityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")) // Blue
	passiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type tickMsg time.Time

type dataMsg struct {
	snap *graph.Snapshot
	err  error
}

type model struct {
	api      *client.Client
	spinner  spinner.Model
	viewport viewport.Model
	snap     *graph.Snapshot
	err      error
	ready    bool
}

func initialModel(api *client.Client) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		api:      api,
		spinner:  s,
		viewport: newViewport(100),
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchGraph(m.api),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchGraph(m.api), tick())

	case dataMsg:
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.viewport.SetContent(renderNodes(m.snap))
		}
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting to %s...", m.spinner.View(), m.api.Endpoint())
	}

	topPane := paneStyle.Render(renderLinks(m.snap))
	header := headerStyle.Render(fmt.Sprintf("%s Visible Nodes", m.spinner.View()))

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else if m.snap != nil {
		st := m.snap.Stats
		status = okStyle.Render(fmt.Sprintf("Online • %d activities • %d passive entities • %d messages • max %d",
			st.Activities, st.PassiveEntities, st.MessagesIngested, m.snap.MaxMessageSends))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, m.viewport.View(), footer)
}

func renderLinks(snap *graph.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Busiest Links") + "\n\n")
	if snap == nil {
		sb.WriteString(subtleStyle.Render("No data yet."))
		return sb.String()
	}
	links := mcp.TopMessageLinks(snap.Links, topLinks)
	if len(links) == 0 {
		sb.WriteString(subtleStyle.Render("No messages recorded."))
		return sb.String()
	}
	for _, l := range links {
		sb.WriteString(fmt.Sprintf("• %s → %s  %d\n", l.Source, l.Target, l.MessageCount))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderNodes(snap *graph.Snapshot) string {
	var sb strings.Builder
	for _, n := range snap.Nodes {
		label := n.Label
		style := activityStyle
		if n.Kind != trace.KindActivity {
			style = passiveStyle
		}
		if n.Group {
			style = groupStyle
			label = fmt.Sprintf("%s ×%d", label, n.Size)
		}
		running := ""
		if n.Running {
			running = okStyle.Render(" ●")
		}
		sb.WriteString(fmt.Sprintf("%s %s %s %s%s\n",
			idStyle.Render(n.DataID),
			kindStyle.Render(n.TypeLabel),
			style.Render(label),
			subtleStyle.Render(fmt.Sprintf("(%.0f,%.0f)", n.X, n.Y)),
			running,
		))
	}
	return sb.String()
}

// Commands

func fetchGraph(api *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		snap, err := api.GetGraph(ctx)
		return dataMsg{snap: snap, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	endpoint := flag.String("api", envOrDefault("TRACEVIEW_ENDPOINT", "http://127.0.0.1:8095"), "Base URL of traceview-d API")
	flag.Parse()

	api := client.NewClient(*endpoint)
	api.SetRetry(client.PushRetry{})

	p := tea.NewProgram(initialModel(api), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
