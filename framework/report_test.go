package framework

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func assertReport(t *testing.T, name string, results Results) {
	t.Helper()
	color.NoColor = true
	var buf bytes.Buffer
	PrintResults(&buf, results)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}

func TestReportAllPassed(t *testing.T) {
	assertReport(t, "report_passed", Results{
		Tests: []TestResult{{TestID: id("user setup")}, {TestID: id("teardown")}},
	})
}

func TestReportFailuresAndSkips(t *testing.T) {
	skipped := TestResult{TestID: id("duplicate delivery", "user1"), Skipped: true,
		SkipReason: "user1 received 2 post_liked events for post 7; duplicates are tolerated"}
	failed := TestResult{TestID: id("post_liked delivery", "user2"), Errors: []error{
		errors.New("user2 expected post_liked with post_id=7, likes_count=1 after user2's like of post 7"),
	}}
	failedAssertion := TestResult{TestID: id("feed verification", "user1"), Errors: []error{
		errors.New("\n    Error Trace: realtime.go:325\n    Error:       Not equal: expected 1, actual 2\n" +
			"    Messages:    likes_count of post 7 in user1's feed does not match the like response\n"),
	}}
	assertReport(t, "report_failures", Results{
		Tests: []TestResult{
			{TestID: id("user setup")}, skipped, failed,
			{TestID: id("post_liked delivery", "user1")}, failedAssertion,
		},
		Skipped:  []TestResult{skipped},
		Failures: []TestResult{failed, failedAssertion},
	})
}

func TestReportAborted(t *testing.T) {
	const reason = "user1 could not log in: HTTP 401"
	assertReport(t, "report_aborted", Results{
		Tests: []TestResult{
			{TestID: id("user setup"), Errors: []error{errors.New(reason)}},
			{TestID: id("stream connection setup"), Skipped: true, SkipReason: "run was aborted: " + reason},
		},
		Failures: []TestResult{{TestID: id("user setup"), Errors: []error{errors.New(reason)}}},
		Skipped:  []TestResult{{TestID: id("stream connection setup"), Skipped: true, SkipReason: "run was aborted: " + reason}},
		Aborted:  reason,
	})
}

func TestReformatErrorDropsTrace(t *testing.T) {
	err := errors.New("\n\tError Trace:\tfoo.go:12\n\t            \tbar.go:30\n\tError:      \tShould be true\n\tTest:       \tx\n")
	assert.Equal(t, "Error:      \tShould be true\nTest:       \tx", reformatError(err))
}
