package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/kinematics"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/solver"
	"github.com/matzehuels/linkage/pkg/statics"
)

// jogCommand creates the interactive jog command.
func (c *CLI) jogCommand() *cobra.Command {
	var (
		flags  solveFlags
		step   float64
		output string
	)

	cmd := &cobra.Command{
		Use:   "jog FILE",
		Short: "Step the primary driver interactively",
		Long: `Jog opens a terminal view of the project. The arrow keys step the primary
driver (or the primary output) from the solved starting pose, and the view
shows the pose, the measures and the joint loads after every step.`,
		Example: `  linkage jog fourbar.json --step 5
  linkage jog fourbar.json --accurate -o jogged.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			if len(m.ActiveDrivers()) == 0 && len(m.ActiveOutputs()) == 0 {
				return fmt.Errorf("%s has no enabled driver or output", args[0])
			}

			runner, err := c.newRunner(ctx, true, false)
			if err != nil {
				return err
			}
			defer runner.Close()

			jm := NewJogModel(ctx, m, runner.SolveFunc(flags.options(c, cmd)), step)
			final, err := tea.NewProgram(jm, tea.WithContext(ctx)).Run()
			if err != nil {
				return err
			}
			if output != "" {
				if jm, ok := final.(JogModel); ok && jm.Err == nil {
					return saveModel(output, jm.model)
				}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().Float64Var(&step, "step", 5, "drive increment per key press")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the project at the final pose on exit")

	return cmd
}

// =============================================================================
// JogModel - Interactive driver stepping
// =============================================================================

// JogModel is the bubbletea model of the jog view.
type JogModel struct {
	Value float64
	Step  float64
	Loads bool
	Err   error

	ctx     context.Context
	model   *model.Model
	tracker *kinematics.Tracker
	solve   kinematics.SolveFunc
	report  *statics.Report
}

// NewJogModel solves m, marks the solved pose as zero and returns the view
// model.
func NewJogModel(ctx context.Context, m *model.Model, solve kinematics.SolveFunc, step float64) JogModel {
	if step <= 0 {
		step = 5
	}
	jm := JogModel{
		Step:    step,
		ctx:     ctx,
		model:   m,
		tracker: kinematics.New(m),
		solve:   solve,
	}
	jm.Err = solve(ctx, m)
	jm.tracker.MarkStart()
	return jm
}

func (m JogModel) Init() tea.Cmd {
	return nil
}

func (m JogModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "right", "l":
		m = m.driveTo(m.Value + m.Step)
	case "left", "h":
		m = m.driveTo(m.Value - m.Step)
	case "up", "k":
		m.Step *= 2
	case "down", "j":
		m.Step /= 2
	case "0":
		m = m.driveTo(0)
	case "f":
		m.Loads = !m.Loads
		m = m.refreshLoads()
	}
	return m, nil
}

// driveTo moves to value. An infeasible pose is kept on screen with its
// residual so the user can step back.
func (m JogModel) driveTo(value float64) JogModel {
	m.Value = value
	m.Err = m.tracker.DriveToRelative(m.ctx, value, m.solve)
	return m.refreshLoads()
}

func (m JogModel) refreshLoads() JogModel {
	m.report = nil
	if !m.Loads {
		return m
	}
	rep, err := statics.Compute(m.model, statics.Options{})
	if err != nil {
		m.Err = err
		return m
	}
	m.report = &rep
	return m
}

func (m JogModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Jog"))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("←/→ step  ↑/↓ step size  0 zero  f loads  q quit"))
	b.WriteString("\n\n")

	maxErr, _ := solver.MaxError(m.model)
	errStyle := StyleSuccess
	if maxErr > solvedTolerance {
		errStyle = StyleWarning
	}

	rows := [][]string{
		{"drive", fmtFloat(m.Value, 3)},
		{"step", fmtFloat(m.Step, 3)},
	}
	if v, ok := m.tracker.InputDeg(); ok {
		rows = append(rows, []string{"input", fmtFloat(v, 3) + " deg"})
	}
	if v, ok := m.tracker.OutputDeg(); ok {
		rows = append(rows, []string{"output", fmtFloat(v, 3) + " deg"})
	}
	var loads []statics.JointLoad
	if m.report != nil {
		loads = m.report.JointLoads
	}
	for _, sig := range m.tracker.MeasureValues(loads) {
		rows = append(rows, []string{sig.Name, strings.TrimSpace(fmtOptional(sig.Value, 3) + " " + string(sig.Unit))})
	}
	rows = append(rows, []string{"max error", errStyle.Render(fmtErr(maxErr))})

	t := newTable("Signal", "Value").Rows(rows...)
	b.WriteString(t.Render())
	b.WriteString("\n")

	if m.report != nil {
		lt := newTable("Point", "Fx", "Fy", "|F|")
		for _, jl := range m.report.JointLoads {
			lt.Row(fmt.Sprintf("P%d", jl.PID), fmtFloat(jl.FX, 3), fmtFloat(jl.FY, 3), fmtFloat(jl.Mag, 3))
		}
		b.WriteString(lt.Render())
		b.WriteString("\n")
		b.WriteString(StyleDim.Render(fmt.Sprintf("  tau input %s · tau output %s",
			fmtOptional(m.report.Summary.TauInput, 3), fmtOptional(m.report.Summary.TauOutput, 3))))
		b.WriteString("\n")
	}

	if m.Err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(colorRed).Render("  " + m.Err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}
