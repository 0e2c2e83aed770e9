// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/ergostat/pkg/pm"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	powerBarMax   = 500 // watts at a full power bar
	maxLogEntries = 100
)

// Focus states
const (
	focusPaceInput = iota
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// watchModel is the Bubble Tea model for the watch TUI
type watchModel struct {
	// Session manager (for commands and reconnection)
	sessMgr     *sessionManager
	connInfo    string
	connectedAt time.Time

	// Monitoring
	stats     pm.Statistics
	last      *pm.Monitor
	lastPoll  time.Time
	lastCurve []uint64
	strokes   int
	errorLog  []errorLogEntry

	// Control
	paceInput    textinput.Model
	powerBar     progress.Model
	focusedField int
	targetPace   float64

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type watchTickMsg time.Time

type watchPollMsg struct {
	at      time.Time
	monitor *pm.Monitor
	err     error
	stats   pm.Statistics
}

type workoutResultMsg struct {
	pace float64
	err  error
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialWatchModel(sessMgr *sessionManager, connInfo string) watchModel {
	ti := textinput.New()
	ti.Placeholder = "2:00.0"
	ti.CharLimit = 7
	ti.Width = 8
	ti.Focus()

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 20

	return watchModel{
		sessMgr:      sessMgr,
		connInfo:     connInfo,
		connectedAt:  time.Now(),
		errorLog:     make([]errorLogEntry, 0),
		paceInput:    ti,
		powerBar:     bar,
		focusedField: focusPaceInput,
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(watchTickCmd(), textinput.Blink)
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.powerBar.Width = max(10, msg.Width/2-10)

	case watchTickMsg:
		m.stats.CalculateRates()
		return m, watchTickCmd()

	case watchPollMsg:
		m.processPoll(msg)

	case workoutResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Set pace failed: %v", msg.err), true)
		} else {
			m.targetPace = msg.pace
			m.addLogEntry(fmt.Sprintf("Pace target set to %s /500m", formatPace(msg.pace)), false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost, reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.connectedAt = time.Now()
		m.addLogEntry("Reconnected: "+msg.connInfo, false)
	}

	return m, nil
}

func (m watchModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		if m.focusedField == focusPaceInput {
			m.focusedField = focusButton
			m.paceInput.Blur()
		} else {
			m.focusedField = focusPaceInput
			m.paceInput.Focus()
		}
		return m, nil

	case "enter":
		return m.handleEnter()
	}

	if m.focusedField == focusPaceInput {
		var cmd tea.Cmd
		m.paceInput, cmd = m.paceInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	value := strings.TrimSpace(m.paceInput.Value())
	if value == "" {
		value = m.paceInput.Placeholder
	}
	pace, err := parsePace(value)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}

	m.addLogEntry(fmt.Sprintf("Programming just row at %s /500m", formatPace(pace)), false)
	if m.sessMgr == nil {
		return m, nil
	}
	return m, m.sessMgr.setPace(pace)
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *watchModel) processPoll(msg watchPollMsg) {
	m.stats = msg.stats
	if msg.monitor != nil {
		prev := m.last
		m.last = msg.monitor
		m.lastPoll = msg.at

		if prev != nil && prev.Status != msg.monitor.Status {
			m.addLogEntry(fmt.Sprintf("Monitor state: %s -> %s", prev.Status, msg.monitor.Status), false)
		}
		if len(msg.monitor.ForceCurve) > 0 {
			m.lastCurve = msg.monitor.ForceCurve
			m.strokes++
		}
	}
	if msg.err != nil {
		m.addLogEntry(fmt.Sprintf("POLL ERROR: %v", msg.err), true)
	}
}

func (m *watchModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.errorLog) > maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("ERGOSTAT WATCH"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=set pace", connStatus)))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf(" %s %s\n\n",
		labelStyle.Render("Connected:"),
		valueStyle.Render(formatUptime(uint64(time.Since(m.connectedAt).Milliseconds())))))

	// Workout and control panels side by side
	leftWidth := m.width/2 - 2
	if leftWidth < 30 {
		leftWidth = 30
	}
	workout := boxStyle.Width(leftWidth).Render(m.renderWorkout(labelStyle, valueStyle, headerStyle))
	control := boxStyle.Width(m.width - leftWidth - 6).Render(m.renderControl(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, workout, " ", control))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle))

	return s.String()
}

func (m watchModel) renderWorkout(labelStyle, valueStyle, headerStyle lipgloss.Style) string {
	if m.last == nil {
		return headerStyle.Render("Waiting for monitor data...")
	}
	mon := m.last

	var s strings.Builder
	row := func(label, value string) {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-11s", label)), valueStyle.Render(value)))
	}
	row("State:", mon.Status.String())
	row("Time:", formatElapsed(mon.Time))
	row("Distance:", fmt.Sprintf("%.1f m", mon.Distance))
	row("Stroke:", fmt.Sprintf("%d spm", mon.SPM))
	row("Pace:", formatPace(mon.Pace)+" /500m")
	row("Cal/hr:", fmt.Sprintf("%.0f", mon.CalHr))
	row("Calories:", fmt.Sprintf("%d", mon.Calories))
	row("Heart Rate:", fmt.Sprintf("%d bpm", mon.HeartRate))

	s.WriteString("\n")
	s.WriteString(labelStyle.Render(fmt.Sprintf("Power %4d W ", mon.Power)))
	percent := float64(mon.Power) / powerBarMax
	if percent > 1 {
		percent = 1
	}
	s.WriteString(m.powerBar.ViewAs(percent))
	return s.String()
}

func (m watchModel) renderControl(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	s.WriteString(labelStyle.Render("Target Pace: "))
	if m.focusedField == focusPaceInput {
		s.WriteString(m.paceInput.View())
	} else {
		// Show as plain text when not focused
		val := m.paceInput.Value()
		if val == "" {
			val = m.paceInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n")
	if m.targetPace > 0 {
		s.WriteString(headerStyle.Render(fmt.Sprintf("active: %s /500m", formatPace(m.targetPace))))
	}
	s.WriteString("\n\n")

	btnText := "[ Set Pace ]"
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Force Curve"))
	if m.strokes > 0 {
		s.WriteString(headerStyle.Render(fmt.Sprintf(" (stroke %d, %d samples)", m.strokes, len(m.lastCurve))))
	}
	s.WriteString("\n")
	if len(m.lastCurve) == 0 {
		s.WriteString(headerStyle.Render("  (no stroke captured)"))
	} else {
		s.WriteString(valueStyle.Render(sparkline(m.lastCurve)))
	}
	return s.String()
}

func (m watchModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	stats := m.stats
	var validPercent, errorPercent float64
	if stats.TotalExchanges > 0 {
		validPercent = float64(stats.ValidExchanges) * 100.0 / float64(stats.TotalExchanges)
		errorPercent = float64(stats.Errors()) * 100.0 / float64(stats.TotalExchanges)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Exchanges:"), valueStyle.Render(fmt.Sprintf("%d", stats.TotalExchanges)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		labelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return valueStyle.Render("0.0%")
		}(),
		labelStyle.Render("Skipped:"), valueStyle.Render(fmt.Sprintf("%d", stats.SkippedRecords)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", stats.ExchangeRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m watchModel) renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 22
	if logHeight < 5 {
		logHeight = 5
	}

	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

// formatUptime formats a duration in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n uint64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
