package testexec

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ethereum-optimism/infra/op-testexec/reporting"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum-optimism/infra/op-testexec/ui"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(summary *reporting.RunSummary, root *types.Result) error
}

// ConsoleResultFormatter prints the result tree as a table
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a formatter writing to out, stdout when nil
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

func (f *ConsoleResultFormatter) FormatResults(summary *reporting.RunSummary, root *types.Result) error {
	f.logger.Debug("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Test Results %s (%s)", summary.RunID, formatDuration(root.Duration)))

	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Tests", "Passed", "Failed", "Skipped", "Asserts", "Status", "Message",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Name", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Asserts", Align: text.AlignRight},
		{Name: "Message", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	appendRows(t, root, 0, true, nil)

	switch root.State.Status {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusFail:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	}

	counts := root.Counts()
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(root.Duration),
		counts.Total(),
		counts.Passed,
		counts.Failed,
		counts.Skipped,
		root.AssertCount,
		getResultString(root.State),
		"",
	})
	t.Render()

	_, err := fmt.Fprintln(f.out, summary.String())
	return err
}

func appendRows(t table.Writer, res *types.Result, depth int, isLast bool, parentIsLast []bool) {
	kind := "Test"
	tests := "1"
	if res.Info.IsSuite {
		kind = "Suite"
		tests = "-"
	}
	c := res.Counts()
	t.AppendRow(table.Row{
		kind,
		ui.BuildTreePrefix(depth, isLast, parentIsLast) + res.Info.Name,
		formatDuration(res.Duration),
		tests,
		c.Passed,
		c.Failed,
		c.Skipped,
		res.AssertCount,
		getResultString(res.State),
		cleanMessage(res.Message),
	})

	var childParents []bool
	if depth > 0 {
		childParents = append(append([]bool(nil), parentIsLast...), isLast)
	}
	for i, child := range res.Children {
		appendRows(t, child, depth+1, i == len(res.Children)-1, childParents)
	}
}

// getResultString renders a state as symbol, status and qualifiers
func getResultString(state types.ResultState) string {
	var symbol string
	switch state.Status {
	case types.TestStatusPass:
		symbol = "✓"
	case types.TestStatusWarning:
		symbol = "!"
	case types.TestStatusSkip:
		symbol = "-"
	case types.TestStatusInconclusive:
		symbol = "?"
	default:
		symbol = "✗"
	}
	var qualifiers []string
	if state.Label != "" {
		qualifiers = append(qualifiers, state.Label)
	}
	if state.Site != "" && state.Site != types.SiteTest {
		qualifiers = append(qualifiers, string(state.Site))
	}
	s := symbol + " " + cases.Title(language.English).String(string(state.Status))
	if len(qualifiers) > 0 {
		s += " (" + strings.Join(qualifiers, ", ") + ")"
	}
	return s
}

// cleanMessage strips terminal escapes and keeps the first line
func cleanMessage(msg string) string {
	msg = stripansi.Strip(msg)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i] + " …"
	}
	return msg
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
