package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/serpent-os/pisi/pkg/pipeline"
)

const maxErrorWidth = 80

func colorState(state pipeline.State) string {
	switch {
	case state == pipeline.Done:
		return color.GreenString(string(state))
	case state.Failed():
		return color.RedString(string(state))
	default:
		return color.YellowString(string(state))
	}
}

// summaryTable lists the units which were dispatched, then the counts per state
var summaryTable = FormatterFunc(func(w io.Writer, data interface{}) error {
	sum, ok := data.(*pipeline.Summary)
	if !ok {
		return fmt.Errorf("unexpected summary type %T", data)
	}

	table := uitable.New()
	table.MaxColWidth = maxErrorWidth
	table.Wrap = true
	table.AddRow("UNIT", "STATE", "VERSION", "FILES", "SIZE", "WARNINGS", "RECIPE", "ERROR")
	for _, u := range sum.Units {
		if u.State == pipeline.FilteredOut {
			continue
		}
		msg := u.Error
		if msg == "" && len(u.Failures) > 0 {
			msg = fmt.Sprintf("%d package(s) not extracted: %s", len(u.Failures), u.Failures[0].Error)
		}
		table.AddRow(u.Unit, colorState(u.State), u.Version, u.Files, units.HumanSize(float64(u.Size)),
			len(u.Warnings), u.Recipe, msg)
	}
	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}

	counts := make([]string, 0, len(sum.Counts))
	for _, state := range pipeline.States() {
		if n := sum.Counts[state]; n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", state, n))
		}
	}
	_, err := fmt.Fprintf(w, "\nrun %s: %d units in %s (%s)\n",
		sum.RunID, len(sum.Units), sum.Finished.Sub(sum.Started).Round(time.Millisecond), strings.Join(counts, " "))
	if err != nil {
		return err
	}
	if len(sum.Missing) > 0 {
		_, err = fmt.Fprintf(w, "missing dependencies: %s\n", strings.Join(sum.Missing, ", "))
	}
	return err
})
