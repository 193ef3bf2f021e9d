// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
)

type screen int

const (
	screenMeasurements screen = iota
	screenConfig
)

// Messages
type measurementsMsg Quadrants
type linkMsg link.State

// Model is the bubbletea model behind the terminal display
type Model struct {
	quadrants Quadrants
	received  bool
	spinner   spinner.Model

	power bool
	wifi  bool
	state *link.State

	screen   screen
	width    int
	height   int
	quitting bool
}

// NewModel creates the initial model: power on, wifi off, no reading yet
func NewModel() Model {
	return Model{
		quadrants: Quadrants{
			A: measurement.Absent(),
			B: measurement.Absent(),
			C: measurement.Absent(),
			D: measurement.Absent(),
		},
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		power:   true,
		width:   80,
		height:  24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter", "tab":
			// The config screen only exists once the link came up
			if m.state != nil && m.state.IsUp() {
				if m.screen == screenMeasurements {
					m.screen = screenConfig
				} else {
					m.screen = screenMeasurements
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case measurementsMsg:
		m.quadrants = Quadrants(msg)
		m.received = true

	case linkMsg:
		state := link.State(msg)
		m.state = &state
		m.wifi = state.IsUp()

	case spinner.TickMsg:
		if m.received {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	onStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(18)

	indicator := func(name string, on bool) string {
		if on {
			return onStyle.Render("● " + name)
		}
		return headerStyle.Render("○ " + name)
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("QUADTHERM"))
	s.WriteString("  ")
	s.WriteString(indicator("PWR", m.power))
	s.WriteString("  ")
	s.WriteString(indicator("WIFI", m.wifi))
	s.WriteString("\n\n")

	if m.screen == screenConfig && m.state != nil {
		var cfg strings.Builder
		cfg.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Address:"), m.state.Address()))
		cfg.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Hardware:"), m.state.HardwareAddr()))
		s.WriteString(boxStyle.Width(40).Render(cfg.String()))
		s.WriteString("\n\n")
		s.WriteString(headerStyle.Render("enter: measurements | q: quit"))
		return s.String()
	}

	cell := func(name string, v measurement.Measurement) string {
		return boxStyle.Render(fmt.Sprintf("%s\n%s", labelStyle.Render(name), v.String()))
	}
	top := lipgloss.JoinHorizontal(lipgloss.Top, cell("A", m.quadrants.A), cell("B", m.quadrants.B))
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, cell("C", m.quadrants.C), cell("D", m.quadrants.D))
	s.WriteString(lipgloss.JoinVertical(lipgloss.Left, top, bottom))
	s.WriteString("\n\n")

	if !m.received {
		s.WriteString(m.spinner.View() + " waiting for first reading")
		s.WriteString("\n")
	}

	help := "q: quit"
	if m.state != nil && m.state.IsUp() {
		help = "enter: network info | " + help
	}
	s.WriteString(headerStyle.Render(help))
	return s.String()
}

// TUI runs the model as a terminal program and implements Renderer
type TUI struct {
	program *tea.Program
}

// NewTUI creates a terminal display bound to ctx
func NewTUI(ctx context.Context, opts ...tea.ProgramOption) *TUI {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	return &TUI{program: tea.NewProgram(NewModel(), opts...)}
}

// Run blocks until the user quits or ctx is done
func (t *TUI) Run(ctx context.Context) error {
	_, err := t.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (t *TUI) ShowMeasurements(q Quadrants) {
	t.program.Send(measurementsMsg(q))
}

func (t *TUI) LinkResolved(state link.State) {
	t.program.Send(linkMsg(state))
}
