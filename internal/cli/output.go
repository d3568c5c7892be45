package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/shaiso/agentflow/internal/domain"
)

var (
	colorOK    = lipgloss.Color("#2E8B57")
	colorFail  = lipgloss.Color("196")
	colorMuted = lipgloss.Color("245")
	colorTitle = lipgloss.Color("#DA702C")
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений

	ok    lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
	title lipgloss.Style
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return newOutput(jsonMode, os.Stdout, os.Stderr)
}

func newOutput(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
		ok:       lipgloss.NewStyle().Foreground(colorOK),
		fail:     lipgloss.NewStyle().Foreground(colorFail).Bold(true),
		muted:    lipgloss.NewStyle().Foreground(colorMuted),
		title:    lipgloss.NewStyle().Foreground(colorTitle).Bold(true),
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, o.ok.Render(msg))
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, o.fail.Render("Error: "+msg))
}

// Step выводит одну запись trace по мере выполнения.
// В JSON режиме — одна строка JSON на шаг.
func (o *Output) Step(step domain.StepResult) {
	if o.jsonMode {
		data, _ := json.Marshal(step)
		fmt.Fprintln(o.w, string(data))
		return
	}

	mark := o.ok.Render("✓")
	detail := preview(step.Output)
	if step.Failed() {
		mark = o.fail.Render("✗")
		detail = o.fail.Render(step.Error)
	}
	fmt.Fprintf(o.w, "%s %s %s %s\n", mark, step.StepName, o.muted.Render(fmt.Sprintf("(%dms)", step.DurationMs)), detail)
}

// Result выводит итог прогона.
func (o *Output) Result(result *domain.WorkflowResult) {
	if o.jsonMode {
		o.JSON(result)
		return
	}

	fmt.Fprintln(o.w, o.title.Render(result.Workflow)+" "+o.muted.Render(result.RunID.String()))
	if len(result.SkippedSteps) > 0 {
		fmt.Fprintln(o.w, o.muted.Render("skipped: "+strings.Join(result.SkippedSteps, ", ")))
	}
	if result.Completed() {
		fmt.Fprintln(o.w, o.ok.Render(result.Summary()))
		fmt.Fprintln(o.w, preview(result.FinalOutput))
		return
	}
	fmt.Fprintln(o.w, o.fail.Render(result.Summary()))
}

// preview — короткое однострочное представление значения.
func preview(v any) string {
	if v == nil {
		return ""
	}
	var s string
	switch x := v.(type) {
	case string:
		s = x
	default:
		data, err := json.Marshal(x)
		if err != nil {
			s = fmt.Sprint(x)
		} else {
			s = string(data)
		}
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
