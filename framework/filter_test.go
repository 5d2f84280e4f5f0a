package framework

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(path ...string) TestID { return TestID{Path: path} }

func TestRegexFilters(t *testing.T) {
	var filters RegexFilters
	assert.True(t, filters.AsFilter(id("anything")))

	require.NoError(t, filters.MustMatch.Set("delivery"))
	require.NoError(t, filters.MustMatch.Set("^feed"))
	require.NoError(t, filters.MustNotMatch.Set("user2$"))

	assert.True(t, filters.AsFilter(id("post_liked delivery", "user1")))
	assert.True(t, filters.AsFilter(id("feed verification")))
	assert.False(t, filters.AsFilter(id("post_liked delivery", "user2")))
	assert.False(t, filters.AsFilter(id("duplicate check")))
}

func TestRegexList(t *testing.T) {
	var list RegexList
	assert.False(t, list.IsDefined())
	assert.Error(t, list.Set("(unclosed"))
	assert.False(t, list.IsDefined())

	require.NoError(t, list.Set("a+"))
	require.NoError(t, list.Set("b"))
	assert.True(t, list.IsDefined())
	assert.Equal(t, `"a+" or "b"`, list.String())
	assert.Equal(t, []string{"a+", "b"}, list.Patterns())
	assert.Equal(t, "regex", list.Type())
	assert.True(t, list.AnyMatch("xaax"))
	assert.False(t, list.AnyMatch("c"))
}

func TestPrintFilterDescription(t *testing.T) {
	var buf bytes.Buffer
	PrintFilterDescription(&buf, RegexFilters{})
	assert.Equal(t, "", buf.String())

	var filters RegexFilters
	require.NoError(t, filters.MustMatch.Set("delivery"))
	require.NoError(t, filters.MustNotMatch.Set("feed"))
	PrintFilterDescription(&buf, filters)
	assert.Equal(t, `Some checks will be skipped based on the filter criteria for this run:
  skip any not matching "delivery"
  skip any matching "feed"

`, buf.String())
}
