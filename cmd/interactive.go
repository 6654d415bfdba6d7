package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/gloomers/logger"
	"github.com/adamgarcia4/goLearning/gloomers/node"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start an interactive broadcast cluster simulator",
	Long: `Start an interactive terminal UI that runs a broadcast cluster in-process on a
simulated network and shows what every node has read.

Keyboard shortcuts:
  C     - Create a new node
  D     - Delete a node (shows selection menu)
  Tab   - Select the next node
  B     - Broadcast the next value to the selected node
  G     - Run one gossip round on every node
  T     - Cycle the topology (line, ring, full)
  X     - Isolate / reconnect the selected node
  H     - Heal every link
  Enter - Repeat the last command
  Q     - Quit

Examples:
  gloomers interactive
  gloomers interactive --manual-gossip
  gloomers interactive --gossip-interval=3s --estimate-policy=optimistic`,
	Args: cobra.NoArgs,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	addGossipFlags(interactiveCmd)
}

const opTimeout = 3 * time.Second

type model struct {
	manager      *node.Manager
	nodes        []string
	views        map[string]node.NodeView
	isolated     map[string]bool
	cursor       int // node selected for broadcast / isolate
	nextValue    uint64
	deleteMode   bool
	selected     int
	err          error
	status       string
	logBuffer    *logger.LogBuffer
	logScroll    int // for scrolling logs
	width        int
	height       int
	lastCommand  string // Track last command for repeat (Enter key)
	numericInput string // Buffer for multi-digit numeric input in delete mode
}

func initialModel(config *node.Config) (model, error) {
	// Interactive mode logs only to the log buffer; the terminal belongs to the UI.
	logBuffer := logger.GetGlobalLogBuffer()
	if err := logger.Init(logger.Options{Level: logLevel, Base: logger.NewLogBufferWriter(logBuffer)}); err != nil {
		return model{}, err
	}

	manager, err := node.NewManager(config)
	if err != nil {
		return model{}, err
	}

	return model{
		manager:   manager,
		views:     make(map[string]node.NodeView),
		isolated:  make(map[string]bool),
		nextValue: 1,
		logBuffer: logBuffer,
	}, nil
}

func (m model) Init() tea.Cmd {
	// Refresh nodes list periodically
	return tea.Batch(tick(), refreshNodes(m.manager))
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

// refreshNodes reads every node so the view shows each one's value set.
func refreshNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return nodesUpdatedMsg{ids: manager.NodeIDs(), views: manager.ReadAll(ctx)}
	}
}

type nodesUpdatedMsg struct {
	ids   []string
	views []node.NodeView
}

// opDoneMsg reports the outcome of a cluster operation run off the UI goroutine.
type opDoneMsg struct {
	command string
	status  string
	err     error
}

type shutdownCompleteMsg struct {
	err error
}

// shutdownNodes stops all nodes and sends a message when complete
func shutdownNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		err := manager.StopAll()
		return shutdownCompleteMsg{err: err}
	}
}

// runOp runs fn with a timeout and turns the result into an opDoneMsg.
func runOp(command, status string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return opDoneMsg{command: command, status: status, err: fn(ctx)}
	}
}

func (m model) selectedNode() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.nodes) {
		return "", false
	}
	return m.nodes[m.cursor], true
}

// command turns a key into a cluster operation. ok is false for keys that are not
// cluster commands.
func (m *model) command(key string) (tea.Cmd, bool) {
	manager := m.manager
	switch key {
	case "c", "C":
		return runOp("create", "node created", func(ctx context.Context) error {
			_, err := manager.CreateNode(ctx)
			return err
		}), true

	case "b", "B":
		id, ok := m.selectedNode()
		if !ok {
			m.err = fmt.Errorf("no node selected")
			return nil, true
		}
		value := m.nextValue
		m.nextValue++
		return runOp("broadcast", fmt.Sprintf("broadcast %d to %s", value, id), func(ctx context.Context) error {
			return manager.Broadcast(ctx, id, value)
		}), true

	case "g", "G":
		return runOp("gossip", "gossip round triggered", func(context.Context) error {
			manager.GossipAll()
			return nil
		}), true

	case "t", "T":
		kind := manager.Topology().Next()
		return runOp("topology", fmt.Sprintf("%s topology installed", kind), func(ctx context.Context) error {
			return manager.InstallTopology(ctx, kind)
		}), true

	case "x", "X":
		id, ok := m.selectedNode()
		if !ok {
			m.err = fmt.Errorf("no node selected")
			return nil, true
		}
		if m.isolated[id] {
			// The network only heals wholesale, so re-isolate everyone else.
			delete(m.isolated, id)
			m.manager.Heal()
			for other := range m.isolated {
				m.manager.Isolate(other)
			}
			m.status = id + " reconnected"
		} else {
			m.isolated[id] = true
			m.manager.Isolate(id)
			m.status = id + " isolated"
		}
		m.err = nil
		m.lastCommand = "isolate"
		return nil, true

	case "h", "H":
		m.isolated = make(map[string]bool)
		m.manager.Heal()
		m.status = "network healed"
		m.err = nil
		m.lastCommand = "heal"
		return nil, true
	}
	return nil, false
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle quit
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			// Stop all nodes gracefully and wait for completion
			return m, shutdownNodes(m.manager)
		}

		// Handle delete mode
		if m.deleteMode {
			return m.handleDeleteMode(msg)
		}

		if cmd, ok := m.command(msg.String()); ok {
			return m, cmd
		}

		switch msg.String() {
		case "d", "D":
			// Enter delete mode
			if len(m.nodes) == 0 {
				m.err = fmt.Errorf("no nodes to delete")
				return m, nil
			}
			m.deleteMode = true
			m.selected = 0
			m.numericInput = "" // Reset numeric input buffer
			// Don't set lastCommand yet - wait to see if a number follows
			return m, nil

		case "tab":
			if len(m.nodes) > 0 {
				m.cursor = (m.cursor + 1) % len(m.nodes)
			}
			return m, nil

		case "shift+tab":
			if len(m.nodes) > 0 {
				m.cursor = (m.cursor - 1 + len(m.nodes)) % len(m.nodes)
			}
			return m, nil

		case "enter":
			return m.repeatLast()

		case "esc":
			m.err = nil
			m.status = ""
			return m, nil

		case "up", "k":
			// Scroll logs up (show older logs)
			maxScroll := m.logBuffer.Len() - 15 // Can scroll back until we have 15 entries left
			if maxScroll < 0 {
				maxScroll = 0
			}
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			// Scroll logs down (show newer logs)
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(tick(), refreshNodes(m.manager))

	case nodesUpdatedMsg:
		m.nodes = msg.ids
		m.views = make(map[string]node.NodeView, len(msg.views))
		for _, v := range msg.views {
			m.views[v.ID] = v
		}
		if m.cursor >= len(m.nodes) {
			m.cursor = 0
		}
		return m, nil

	case opDoneMsg:
		m.lastCommand = msg.command
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
		} else {
			m.err = nil
			m.status = msg.status
		}
		return m, refreshNodes(m.manager)

	case shutdownCompleteMsg:
		// Log any shutdown errors via the logger
		if msg.err != nil {
			logger.Errorf("Error stopping nodes during shutdown: %v", msg.err)
		}
		// Now quit after shutdown is complete
		return m, tea.Quit
	}

	return m, nil
}

func (m model) repeatLast() (tea.Model, tea.Cmd) {
	switch {
	case m.lastCommand == "":
		return m, nil

	case strings.HasPrefix(m.lastCommand, "delete:"):
		index, err := strconv.Atoi(strings.TrimPrefix(m.lastCommand, "delete:"))
		if err != nil {
			return m, nil
		}
		if index < 0 || index >= len(m.nodes) {
			m.err = fmt.Errorf("node index %d no longer exists", index+1)
			return m, nil
		}
		return m, m.deleteNode(index)
	}

	keys := map[string]string{
		"create":    "c",
		"broadcast": "b",
		"gossip":    "g",
		"topology":  "t",
		"isolate":   "x",
		"heal":      "h",
	}
	if key, ok := keys[m.lastCommand]; ok {
		cmd, _ := m.command(key)
		return m, cmd
	}
	return m, nil
}

func (m *model) deleteNode(index int) tea.Cmd {
	manager := m.manager
	id := m.nodes[index]
	delete(m.isolated, id)
	return runOp(fmt.Sprintf("delete:%d", index), id+" deleted", func(ctx context.Context) error {
		return manager.DeleteNode(ctx, index)
	})
}

func (m model) handleDeleteMode(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m.deleteMode = false
			m.selected = 0
			m.err = nil
			m.numericInput = "" // Clear numeric input buffer
			return m, nil

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down", "j":
			if m.selected < len(m.nodes)-1 {
				m.selected++
			}
			return m, nil

		case "enter", " ":
			index := m.selected
			// If there's numeric input, process that first
			if m.numericInput != "" {
				input := m.numericInput
				m.numericInput = ""
				num, err := strconv.Atoi(input)
				if err != nil {
					m.err = fmt.Errorf("invalid number: %s", input)
					return m, nil
				}
				// Validate: 1 <= num <= len(m.nodes)
				if num < 1 || num > len(m.nodes) {
					m.err = fmt.Errorf("node %d does not exist (max: %d)", num, len(m.nodes))
					return m, nil
				}
				index = num - 1
			}
			if index >= len(m.nodes) {
				m.err = fmt.Errorf("no nodes to delete")
				return m, nil
			}
			m.deleteMode = false
			m.selected = 0
			return m, m.deleteNode(index)

		default:
			// Handle numeric input (supports multi-digit numbers)
			keyStr := msg.String()
			if len(keyStr) == 1 && keyStr >= "0" && keyStr <= "9" {
				m.numericInput += keyStr
				// Clear any previous error when typing
				if m.err != nil && strings.Contains(m.err.Error(), "does not exist") {
					m.err = nil
				}
				return m, nil
			}

			// Non-numeric key, clear the buffer
			m.numericInput = ""
			return m, nil
		}
	}
	return m, nil
}

// formatValues renders a sorted value set, eliding the middle of long sets.
func formatValues(values []uint64) string {
	sorted := append([]uint64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	const maxShown = 12
	shown := sorted
	var tail []uint64
	if len(sorted) > maxShown {
		shown = sorted[:maxShown/2]
		tail = sorted[len(sorted)-maxShown/2:]
	}

	parts := make([]string, 0, maxShown+1)
	for _, v := range shown {
		parts = append(parts, strconv.FormatUint(v, 10))
	}
	if tail != nil {
		parts = append(parts, "…")
		for _, v := range tail {
			parts = append(parts, strconv.FormatUint(v, 10))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (m model) View() string {
	var s strings.Builder

	// Title
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Padding(1, 2)
	s.WriteString(titleStyle.Render("Broadcast Cluster Simulator"))
	s.WriteString("\n")

	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
	s.WriteString(infoStyle.Render(fmt.Sprintf("topology: %s | next value: %d", m.manager.Topology(), m.nextValue)))
	s.WriteString("\n\n")

	// Status
	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	} else if m.status != "" {
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		s.WriteString(statusStyle.Render(m.status))
		s.WriteString("\n\n")
	}

	// Nodes list
	if len(m.nodes) == 0 {
		s.WriteString("No nodes running.\n\n")
	} else {
		s.WriteString("Nodes:\n\n")
		for i, id := range m.nodes {
			read := "(reading…)"
			if v, ok := m.views[id]; ok {
				if v.Err != nil {
					read = "(unreachable)"
				} else {
					read = fmt.Sprintf("%d values %s", len(v.Values), formatValues(v.Values))
				}
			}
			flag := ""
			if m.isolated[id] {
				flag = " [isolated]"
			}
			marker := " "
			if i == m.cursor {
				marker = "*"
			}
			line := fmt.Sprintf("[%d] %s %-4s%s  %s", i+1, marker, id, flag, read)

			switch {
			case m.deleteMode && i == m.selected:
				// Highlight selected node in delete mode
				nodeStyle := lipgloss.NewStyle().
					PaddingLeft(2).
					Foreground(lipgloss.Color("196")).
					Bold(true)
				s.WriteString(nodeStyle.Render(line))
			case m.isolated[id]:
				s.WriteString(lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("214")).Render(line))
			default:
				s.WriteString("  " + line)
			}
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderLogs())
	s.WriteString("\n\n")

	// Instructions
	instructionsStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true).
		PaddingTop(1)

	if m.deleteMode {
		helpText := "DELETE MODE: Use ↑/↓/j/k or type node number (1-%d, multi-digit supported), Enter to confirm, Esc to cancel"
		if m.numericInput != "" {
			helpText = fmt.Sprintf("DELETE MODE: Type node number (current: %s) or Enter to confirm, Esc to cancel", m.numericInput)
		}
		s.WriteString(instructionsStyle.Render(fmt.Sprintf(helpText, len(m.nodes))))
	} else {
		instructionText := "C create | D delete | Tab select | B broadcast | G gossip | T topology | X isolate | H heal"
		if m.lastCommand != "" {
			instructionText += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
		}
		instructionText += " | ↑/↓/j/k to scroll logs | Q to quit"
		s.WriteString(instructionsStyle.Render(instructionText))
	}

	return s.String()
}

// renderLogs draws the log box, newest entry first, shifted back by logScroll.
func (m model) renderLogs() string {
	const logCount = 15

	allEntries := m.logBuffer.GetAll()
	totalCount := len(allEntries)

	var logLines []string
	if totalCount == 0 {
		logLines = []string{"     | (no logs yet)"}
	} else {
		end := totalCount - m.logScroll
		if end < 0 {
			end = 0
		}
		start := end - logCount
		if start < 0 {
			start = 0
		}
		// Line number: most recent entry = 0
		for i := end - 1; i >= start; i-- {
			lineNum := fmt.Sprintf("%4d", totalCount-1-i)
			logLines = append(logLines, fmt.Sprintf("%s | %s", lineNum, logger.FormatLogEntry(allEntries[i])))
		}
	}

	// use terminal width if available, otherwise default
	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4 // Leave some margin
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(13).
		Width(boxWidth)

	return logStyle.Render("Logs:\n" + strings.Join(logLines, "\n"))
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	if strings.HasPrefix(lastCommand, "delete:") {
		if index, err := strconv.Atoi(strings.TrimPrefix(lastCommand, "delete:")); err == nil {
			// Show as multi-step: D → 1 (where 1 is index+1)
			return fmt.Sprintf("D → %d", index+1)
		}
		return "D → [node]"
	}
	previews := map[string]string{
		"create":    "C",
		"broadcast": "B",
		"gossip":    "G",
		"topology":  "T",
		"isolate":   "X",
		"heal":      "H",
	}
	if p, ok := previews[lastCommand]; ok {
		return p
	}
	return lastCommand
}

func runInteractive(cmd *cobra.Command, args []string) error {
	config, err := buildConfig()
	if err != nil {
		return err
	}

	m, err := initialModel(config)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running interactive mode: %w", err)
	}
	return nil
}
