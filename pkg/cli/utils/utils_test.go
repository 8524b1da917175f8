package utils

import (
	"testing"

	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTags(t *testing.T) {
	tags, err := ParseTags([]string{"Environment:production, region:us-east", "machine:db01"})
	require.NoError(t, err)
	assert.Equal(t, []types.Tag{
		{Type: "environment", Value: "production"},
		{Type: "region", Value: "us-east"},
		{Type: "machine", Value: "db01"},
	}, tags)

	_, err = ParseTags([]string{"novalue"})
	assert.True(t, types.IsValidationError(err))

	tags, err = ParseTags(nil)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestParseApplications(t *testing.T) {
	apps, err := ParseApplications([]string{"billing@1.0", "web@2", "billing@1.1"})
	require.NoError(t, err)
	assert.Equal(t, []types.Application{
		{Name: "billing", Versions: []string{"1.0", "1.1"}},
		{Name: "web", Versions: []string{"2"}},
	}, apps)

	for _, bad := range []string{"billing", "@1.0", "billing@"} {
		_, err := ParseApplications([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseOptionalBool(t *testing.T) {
	b, err := ParseOptionalBool("")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = ParseOptionalBool("false")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.False(t, *b)

	_, err = ParseOptionalBool("maybe")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
}
