// Package monitor is the optional live terminal dashboard: it polls
// PeerCore.Snapshot() and the piece store's completion count and renders
// them as a bubbletea program, enabled with the --tui CLI flag.
package monitor

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/p2pswarm/node/internal/swarm"
)

// StatsSource is the subset of the running peer the dashboard polls. It is
// satisfied by *process.PeerProcess indirectly through small accessor
// methods so this package never depends on process (which would be a
// cycle); callers supply a thin closure-backed adapter instead.
type StatsSource struct {
	PeerID    int
	CountHave func() int
	NumPieces func() int
	Snapshot  func() []swarm.Snapshot
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	peerID int
	source StatsSource

	haveCount  int
	numPieces  int
	neighbors  []swarm.Snapshot
	lastUpdate time.Time
	quitting   bool
}

// NewModel builds the initial dashboard model for peerID, polling source.
func NewModel(peerID int, source StatsSource) Model {
	return Model{peerID: peerID, source: source, lastUpdate: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.haveCount = m.source.CountHave()
		m.numPieces = m.source.NumPieces()
		m.neighbors = m.source.Snapshot()
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case tea.QuitMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "peer shutting down\n"
	}

	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).
		Render(fmt.Sprintf("peer %d", m.peerID))
	fmt.Fprintf(&b, "%s\n\n", title)

	pct := 0.0
	if m.numPieces > 0 {
		pct = 100 * float64(m.haveCount) / float64(m.numPieces)
	}
	bar := progressBar(pct, 40)
	progressStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	fmt.Fprintf(&b, "pieces: %s %d/%d (%.1f%%)\n\n", progressStyle.Render(bar), m.haveCount, m.numPieces, pct)

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6366F1"))
	fmt.Fprintf(&b, "%s\n", headerStyle.Render("neighbors"))
	if len(m.neighbors) == 0 {
		b.WriteString("  (none connected)\n")
	}
	for _, n := range m.neighbors {
		fmt.Fprintf(&b, "  peer %-4d  choking=%-5v choked_by=%-5v interested=%-5v interested_in_me=%-5v window=%dB\n",
			n.PeerID, n.AmChoking, n.PeerChokingMe, n.AmInterested, n.PeerInterestedInMe, n.DownloadBytesWindow)
	}

	footerStyle := lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#6B7280"))
	fmt.Fprintf(&b, "\n%s\n", footerStyle.Render("q to quit"))

	return b.String()
}

func progressBar(pct float64, width int) string {
	filled := int(float64(width) * pct / 100)
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
