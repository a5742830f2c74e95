//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sprawl-cli/internal/index"
	"github.com/sells-group/sprawl-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Request:   model.RunRequest{District: "Lahore"},
			Status:    model.RunStatusComplete,
			Outcome:   model.OutcomeDone,
			Result:    &model.RunResult{Summary: index.Summary{SprawlFraction: 0.125}},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Request:   model.RunRequest{District: "Karachi"},
			Status:    model.RunStatusFailed,
			Outcome:   model.OutcomeNoImagery,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-59 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "DISTRICT")
	assert.Contains(t, output, "OUTCOME")
	assert.Contains(t, output, "Lahore")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "12.5%")
	assert.Contains(t, output, "Karachi")
	assert.Contains(t, output, "no_imagery")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "2m0s")
}

func TestFormatRunsList_LongDistrict(t *testing.T) {
	runs := []model.Run{{
		ID:      "x",
		Request: model.RunRequest{District: "Shaheed Benazirabad Nawabshah District Extended"},
		Status:  model.RunStatusQueued,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	assert.Contains(t, buf.String(), "Shaheed Benazirabad Nawabsh...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestWriteRun(t *testing.T) {
	run := &model.Run{
		ID:      "run-1",
		Request: model.RunRequest{District: "Lahore", DateRange: "2023-01-01/2023-05-30"},
		Status:  model.RunStatusComplete,
		Outcome: model.OutcomeDone,
		Result: &model.RunResult{
			District: "Lahore",
			TileIDs:  []string{"T43RDQ"},
			Summary:  index.Summary{ValidPixels: 10, SprawlPixels: 2, SprawlFraction: 0.2},
		},
	}

	var jsonBuf bytes.Buffer
	require.NoError(t, writeRun(&jsonBuf, run, "json"))
	var fromJSON model.Run
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &fromJSON))
	assert.Equal(t, "Lahore", fromJSON.Result.District)
	assert.Contains(t, jsonBuf.String(), "\n  \"id\": \"run-1\"")

	var yamlBuf bytes.Buffer
	require.NoError(t, writeRun(&yamlBuf, run, "yaml"))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &fromYAML))
	assert.Equal(t, "run-1", fromYAML["id"])
	assert.Equal(t, "done", fromYAML["outcome"])
	result, ok := fromYAML["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"T43RDQ"}, result["tile_ids"])
	assert.NotContains(t, result, "grid")
}
