package framework

import "strings"

type Results struct {
	Tests    []TestResult
	Failures []TestResult
	Skipped  []TestResult

	// Aborted is non-empty if a fatal setup failure stopped the run early.
	Aborted string
}

type TestResult struct {
	TestID     TestID
	Errors     []error
	Skipped    bool
	SkipReason string
}

func (r Results) OK() bool {
	return len(r.Failures) == 0 && r.Aborted == ""
}

// Passed returns the number of checks that neither failed nor were skipped.
func (r Results) Passed() int {
	return len(r.Tests) - len(r.Failures) - len(r.Skipped)
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

func (t TestID) Plus(name string) TestID {
	return TestID{Path: append(append([]string(nil), t.Path...), name)}
}
