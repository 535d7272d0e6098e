package pipeline

import (
	"bytes"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSummary() *Summary {
	c := &collector{}
	c.add(UnitReport{Unit: "zlib", State: Done, Recipe: "z/zlib", Match: model.MatchExact, Files: 12, Size: 4096})
	c.add(UnitReport{Unit: "attr", State: Conflict, Error: "path conflict"})
	c.add(UnitReport{Unit: "hollow", State: Empty})
	c.add(UnitReport{Unit: "bash", State: Done, Warnings: []model.IntegrityWarning{
		{Package: "bash", Path: "/usr/bin/sh", Reason: model.WarnUndeclared},
	}})
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return c.summary(&Summary{RunID: "run", Started: started, Finished: started.Add(time.Minute), Index: "unstable"})
}

func TestSummary(t *testing.T) {
	sum := testSummary()
	ids := make([]string, 0, len(sum.Units))
	for _, u := range sum.Units {
		ids = append(ids, u.Unit)
	}
	assert.Equal(t, []string{"attr", "bash", "hollow", "zlib"}, ids)
	assert.Equal(t, map[State]int{Done: 2, Conflict: 1, Empty: 1}, sum.Counts)
	assert.Len(t, sum.Failed(), 1)
	assert.Equal(t, 1, sum.ExitCode())

	zlib, ok := sum.Get("zlib")
	require.True(t, ok)
	assert.Equal(t, 12, zlib.Files)
	_, ok = sum.Get("nope")
	assert.False(t, ok)

	assert.Equal(t, 0, (&Summary{}).ExitCode())
}

func TestSummaryEncoding(t *testing.T) {
	sum := testSummary()

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sum.Write(&buf))
		assert.Contains(t, buf.String(), "runID: run\n")

		back, err := ReadSummary(&buf)
		require.NoError(t, err)
		assert.Equal(t, sum.Units, back.Units)
		assert.Equal(t, sum.Counts, back.Counts)
		assert.True(t, sum.Started.Equal(back.Started))
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sum.WriteJSON(&buf))

		var back Summary
		require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &back))
		assert.Equal(t, sum.Units, back.Units)
		assert.Equal(t, 2, back.Counts[Done])
	})
}
