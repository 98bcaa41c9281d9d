package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// recentIterations is how many classifications the run view keeps on screen.
const recentIterations = 8

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	faintStyle = lipgloss.NewStyle().Faint(true)

	verdictStyles = map[m.Verdict]lipgloss.Style{
		m.Accepted: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		m.Rejected: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		m.NonLive:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func styleVerdict(v m.Verdict) string {
	if style, ok := verdictStyles[v]; ok {
		return style.Render(string(v))
	}

	return string(v)
}

// TUI implements UI using Bubble Tea for interactive display.
type TUI struct {
	output io.Writer

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start launches the live run view in run mode. View mode prints directly.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := StartConfig{}
	for _, option := range options {
		option(&cfg)
	}

	if cfg.mode != ModeRun {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.program != nil {
		return errors.New("tui already started")
	}

	t.program = tea.NewProgram(newRunModel(),
		tea.WithOutput(t.output),
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	t.done = make(chan struct{})

	go func(program *tea.Program, done chan struct{}) {
		defer close(done)

		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Error("Run view failed", "error", err)
		}
	}(t.program, t.done)

	return nil
}

// Close asks the run view to exit after rendering what it has.
func (t *TUI) Close(context.Context) {
	if program := t.running(); program != nil {
		program.Quit()
	}
}

// Wait blocks until the run view exits.
func (t *TUI) Wait(ctx context.Context) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (t *TUI) running() *tea.Program {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.program
}

func (t *TUI) send(msg tea.Msg) bool {
	program := t.running()
	if program == nil {
		return false
	}

	program.Send(msg)

	return true
}

// DisplayRunInfo shows the search parameters in the run view header.
func (t *TUI) DisplayRunInfo(ctx context.Context, info RunInfo) {
	if ctx.Err() != nil {
		return
	}

	if !t.send(info) {
		_, _ = fmt.Fprintln(t.output, runInfoLine(info))
	}
}

// DisplayIteration adds a classification to the run view.
func (t *TUI) DisplayIteration(ctx context.Context, record m.Record, progress m.Progress) {
	if ctx.Err() != nil {
		return
	}

	if !t.send(iterationMsg{record: record, progress: progress}) {
		_, _ = fmt.Fprintln(t.output, iterationLine(record))
	}
}

// DisplaySummary renders the totals and ends the run view.
func (t *TUI) DisplaySummary(ctx context.Context, manifest m.Manifest) {
	if ctx.Err() != nil {
		return
	}

	if !t.send(summaryMsg(manifest)) {
		_, _ = fmt.Fprint(t.output, summaryLines(manifest))
	}
}

// DisplayProgram shows the disassembly, paged when it exceeds the terminal.
func (t *TUI) DisplayProgram(ctx context.Context, class string, methods []*m.Method) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.page("Disassembly", renderProgramTable(class, methods))
}

// DisplayRecords shows the classification records of a run.
func (t *TUI) DisplayRecords(ctx context.Context, records []m.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.page("Results", renderRecordsTable(records, styleVerdict))
}

// DisplayDiff shows a unified diff.
func (t *TUI) DisplayDiff(ctx context.Context, diff string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if diff == "" {
		diff = "no differences\n"
	}

	return t.page("Diff", diff)
}

func (t *TUI) page(title, content string) error {
	model := newPagerModel(title, strings.Split(strings.TrimRight(content, "\n"), "\n"))

	// Get initial terminal size
	if f, ok := t.output.(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			model.height = height
			model.width = width
		}
	}

	// If the content is small, just print and exit
	if !model.needsPagination() {
		_, err := fmt.Fprint(t.output, model.View())
		return err
	}

	program := tea.NewProgram(model, tea.WithOutput(t.output), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	return nil
}

func runInfoLine(info RunInfo) string {
	p := info.Parameters

	return fmt.Sprintf("%s (%d methods, %d instructions) | oracle %s | loop %d | beta %g | seed %d",
		info.Class, info.Methods, info.SeedSize, info.Oracle, p.LoopCount, p.Beta, p.RandomSeed)
}

func iterationLine(r m.Record) string {
	return fmt.Sprintf("  %-7s %s %s %s hook %d  coverage %.3f",
		styleVerdict(r.Verdict), r.Artifact, r.Mutation.Operator, r.Mutation.Method, r.Mutation.HookSite, r.Coverage)
}

func summaryLines(manifest m.Manifest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n  %s %d | %s %d | %s %d | iterations %d\n",
		styleVerdict(m.Accepted), manifest.Totals[m.Accepted],
		styleVerdict(m.Rejected), manifest.Totals[m.Rejected],
		styleVerdict(m.NonLive), manifest.Totals[m.NonLive],
		manifest.Iterations)
	fmt.Fprintf(&b, "  coverage %.2f%% | ever live %d/%d\n", manifest.Coverage*100, manifest.TotalLive, manifest.SeedSize)

	if manifest.Stopped != "" {
		fmt.Fprintf(&b, "  stopped: %s\n", manifest.Stopped)
	}

	return b.String()
}

type (
	iterationMsg struct {
		record   m.Record
		progress m.Progress
	}
	summaryMsg m.Manifest
)

// runModel is the live view of a running search.
type runModel struct {
	info     *RunInfo
	bar      progress.Model
	progress m.Progress
	recent   []m.Record
	summary  *m.Manifest
}

func newRunModel() runModel {
	return runModel{bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))}
}

func (rm runModel) Init() tea.Cmd {
	return nil
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		rm.bar.Width = min(max(msg.Width-20, 10), 60)
	case RunInfo:
		rm.info = &msg
	case iterationMsg:
		rm.progress = msg.progress

		rm.recent = append(rm.recent, msg.record)
		if len(rm.recent) > recentIterations {
			rm.recent = rm.recent[len(rm.recent)-recentIterations:]
		}
	case summaryMsg:
		manifest := m.Manifest(msg)
		rm.summary = &manifest

		return rm, tea.Quit
	}

	return rm, nil
}

func (rm runModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("lbcmut - control-flow mutation search"))
	b.WriteString("\n")

	if rm.info != nil {
		b.WriteString(faintStyle.Render(runInfoLine(*rm.info)))
		b.WriteString("\n")
	}

	b.WriteString("\n")

	ratio := 0.0
	if rm.progress.MaxIterations > 0 {
		ratio = float64(rm.progress.Iteration) / float64(rm.progress.MaxIterations)
	}

	fmt.Fprintf(&b, "  %s %d/%d\n", rm.bar.ViewAs(ratio), rm.progress.Iteration, rm.progress.MaxIterations)
	fmt.Fprintf(&b, "  coverage %.3f | ever live %d/%d | %s %d  %s %d  %s %d\n\n",
		rm.progress.Coverage, rm.progress.TotalLive, rm.progress.SeedSize,
		styleVerdict(m.Accepted), rm.progress.Summary[m.Accepted],
		styleVerdict(m.Rejected), rm.progress.Summary[m.Rejected],
		styleVerdict(m.NonLive), rm.progress.Summary[m.NonLive])

	for _, r := range rm.recent {
		b.WriteString(iterationLine(r))
		b.WriteString("\n")
	}

	if rm.summary != nil {
		b.WriteString(summaryLines(*rm.summary))
	}

	return b.String()
}

// pagerModel represents the Bubble Tea model for scrolling long listings.
type pagerModel struct {
	title    string
	lines    []string
	height   int
	width    int
	offset   int
	quitting bool
}

func newPagerModel(title string, lines []string) pagerModel {
	return pagerModel{title: title, lines: lines}
}

func (pm pagerModel) Init() tea.Cmd {
	return nil
}

func (pm pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		pm.height = msg.Height
		pm.width = msg.Width

		return pm, nil

	case tea.KeyMsg:
		return pm.handleKeyPress(msg)
	}

	return pm, nil
}

func (pm pagerModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	//nolint:exhaustive // We only handle specific navigation keys
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		pm.quitting = true
		return pm, tea.Quit
	default:
		// Handle other key types in the string switch below
	}

	switch msg.String() {
	case "q":
		pm.quitting = true
		return pm, tea.Quit

	case "down", "j":
		pm.offset = min(pm.offset+1, pm.maxOffset())

	case "up", "k":
		pm.offset = max(pm.offset-1, 0)

	case "g", "home":
		pm.offset = 0

	case "G", "end":
		pm.offset = pm.maxOffset()

	case "d", "pgdown":
		pm.offset = min(pm.offset+pm.itemsPerPage(), pm.maxOffset())

	case "u", "pgup":
		pm.offset = max(pm.offset-pm.itemsPerPage(), 0)
	}

	return pm, nil
}

// itemsPerPage calculates how many lines fit between header and footer.
func (pm pagerModel) itemsPerPage() int {
	if pm.height == 0 {
		return 10
	}

	// header 2, footer 3
	reserved := 5

	return max(pm.height-reserved, 1)
}

func (pm pagerModel) maxOffset() int {
	return max(len(pm.lines)-pm.itemsPerPage(), 0)
}

func (pm pagerModel) needsPagination() bool {
	return pm.height > 0 && len(pm.lines) > pm.itemsPerPage()
}

func (pm pagerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(pm.title))
	b.WriteString("\n\n")

	if !pm.needsPagination() {
		for _, line := range pm.lines {
			b.WriteString(line)
			b.WriteString("\n")
		}

		return b.String()
	}

	start := min(pm.offset, pm.maxOffset())
	end := min(start+pm.itemsPerPage(), len(pm.lines))

	for _, line := range pm.lines[start:end] {
		b.WriteString(line)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n  Lines %d-%d of %d\n", start+1, end, len(pm.lines))
	b.WriteString("  ↑/k: up | ↓/j: down | g: top | G: bottom | q: quit\n")

	return b.String()
}
