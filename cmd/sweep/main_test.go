package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cbf.sweep/internal/store"
	"github.com/banshee-data/cbf.sweep/internal/sweep"
	"github.com/banshee-data/cbf.sweep/internal/testutil"
)

func TestParseFlagsDefaults(t *testing.T) {
	o, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, -1, o.workers)
	assert.Equal(t, "sweep-out", o.outDir)
	assert.False(t, o.concat)

	_, err = parseFlags([]string{"-h"})
	assert.ErrorIs(t, err, flag.ErrHelp)

	_, err = parseFlags([]string{"extra"})
	assert.Error(t, err)
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &out))
	assert.Contains(t, out.String(), "sweep dev")
}

func TestRunBadGrid(t *testing.T) {
	testutil.SilenceLogs(t)
	err := run(context.Background(), []string{"-distance", "3:1:2"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "distance")
}

func TestRunSmallSweep(t *testing.T) {
	testutil.SilenceLogs(t)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	dbPath := filepath.Join(dir, "sweeps.db")
	chartPath := filepath.Join(dir, "sweep.html")

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-distance", "3",
		"-velocity", "0.5",
		"-theta", "0.4",
		"-gamma1", "0.5",
		"-gamma2", "0.3,0.6",
		"-workers", "2",
		"-batch-size", "1",
		"-out-dir", outDir,
		"-concat",
		"-db", dbPath,
		"-chart", chartPath,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "2 configurations, 0 failed, 2 batches")

	for _, name := range []string{"batch_0000.csv", "batch_0001.csv", "dataset.csv"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}

	f, err := os.Open(filepath.Join(outDir, "dataset.csv"))
	require.NoError(t, err)
	defer f.Close()
	outcomes, err := sweep.ReadOutcomes(f)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 0.3, outcomes[0].Gamma2)
	assert.Equal(t, 0.6, outcomes[1].Gamma2)

	html, err := os.ReadFile(chartPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "CBF sweep")

	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	list, err := store.NewSweepStore(db).ListSweeps(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "complete", list[0].Status)
	assert.Equal(t, 2, list[0].CompletedCombos)
}
