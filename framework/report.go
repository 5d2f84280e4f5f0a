package framework

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	passColor  = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	skipColor  = color.New(color.FgYellow)
	abortColor = color.New(color.FgRed, color.Bold, color.Underline)
)

// PrintResults writes the final summary of a run: the totals, every failed check with its
// errors, every skipped check with its reason, and the abort reason if there was one.
func PrintResults(out io.Writer, results Results) {
	fmt.Fprintf(out, "Checks: %d run, %d passed, %d failed, %d skipped\n",
		len(results.Tests), results.Passed(), len(results.Failures), len(results.Skipped))

	if len(results.Skipped) > 0 {
		fmt.Fprintln(out)
		skipColor.Fprintln(out, "SKIPPED:")
		for _, r := range results.Skipped {
			if r.SkipReason == "" {
				fmt.Fprintf(out, "  %s\n", r.TestID)
			} else {
				fmt.Fprintf(out, "  %s (%s)\n", r.TestID, r.SkipReason)
			}
		}
	}

	if len(results.Failures) > 0 {
		fmt.Fprintln(out)
		failColor.Fprintln(out, "FAILED:")
		for _, r := range results.Failures {
			fmt.Fprintf(out, "  %s\n", r.TestID)
			for _, err := range r.Errors {
				for _, line := range strings.Split(reformatError(err), "\n") {
					fmt.Fprintf(out, "    %s\n", line)
				}
			}
		}
	}

	fmt.Fprintln(out)
	switch {
	case results.Aborted != "":
		abortColor.Fprintf(out, "ABORTED: %s\n", results.Aborted)
	case results.OK():
		passColor.Fprintln(out, "All checks passed")
	default:
		failColor.Fprintln(out, "Some checks failed")
	}
}

// reformatError drops the "Error Trace" section that testify adds to assertion messages
// and flattens the indentation of the rest.
func reformatError(err error) string {
	var lines []string
	skipping := false
	for _, line := range strings.Split(strings.TrimSpace(err.Error()), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Error Trace:"):
			skipping = true
			continue
		case strings.HasPrefix(trimmed, "Error:"), strings.HasPrefix(trimmed, "Messages:"),
			strings.HasPrefix(trimmed, "Test:"):
			skipping = false
		}
		if skipping || trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n")
}
