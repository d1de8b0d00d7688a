package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadPlanRequest_DecodesJSONDocument(t *testing.T) {
	path := writeTempFile(t, "request.json", `{
		"requestId": "req-1",
		"dayBoundary": {"open": "09:00", "close": "20:00"},
		"nodes": []
	}`)

	req, err := readPlanRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, "09:00", req.DayBoundary.Open)
}

func TestReadDirections_NormalizesTagsAfterDecode(t *testing.T) {
	path := writeTempFile(t, "directions.json", `[{"uuid": "d1", "countryCode": "JP", "tags": ["hiking", "culture"]}]`)

	dirs, err := readDirections(path)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	_, ok := dirs[0].Tags["hiking"]
	assert.True(t, ok)
}

func TestReadPlaces_EmptyPathReturnsNilWithoutError(t *testing.T) {
	places, err := readPlaces("")
	require.NoError(t, err)
	assert.Nil(t, places)
}
