package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erp/invoicerouter/internal/application/pipeline"
	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "internal", "infrastructure", "vendor", "testdata", name))
	require.NoError(t, err)
	return string(data)
}

func writeInput(t *testing.T, docs ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte("["+strings.Join(docs, ",")+"]"), 0o600))
	return path
}

func newService(t *testing.T) *pipeline.Service {
	t.Helper()
	svc, err := pipeline.NewService(pipeline.Config{
		PipelineVersion:  "1.0.0",
		Policy:           invoice.DefaultPolicy(),
		BatchConcurrency: 2,
	}, pipeline.WithBatchIDGenerator(func() string { return "batch-1" }))
	require.NoError(t, err)
	return svc
}

func TestParseFlags(t *testing.T) {
	t.Run("input required", func(t *testing.T) {
		_, err := parseFlags([]string{}, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--input")
	})

	t.Run("shorthands", func(t *testing.T) {
		opts, err := parseFlags([]string{"-i", "in.json", "-o", "out", "-c", "router.toml", "--concurrency", "4", "--strict"}, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, "in.json", opts.inputPath)
		assert.Equal(t, "out", opts.outputDir)
		assert.Equal(t, "router.toml", opts.configPath)
		assert.Equal(t, 4, opts.concurrency)
		assert.True(t, opts.strict)
	})

	t.Run("negative concurrency", func(t *testing.T) {
		_, err := parseFlags([]string{"-i", "in.json", "--concurrency", "-1"}, io.Discard)
		assert.Error(t, err)
	})

	t.Run("version needs no input", func(t *testing.T) {
		opts, err := parseFlags([]string{"--version"}, io.Discard)
		require.NoError(t, err)
		assert.True(t, opts.showVersion)
	})

	t.Run("help", func(t *testing.T) {
		var stderr bytes.Buffer
		_, err := parseFlags([]string{"--help"}, &stderr)
		assert.ErrorIs(t, err, pflag.ErrHelp)
		assert.Contains(t, stderr.String(), "USAGE")
	})
}

func TestRun_WritesArtifacts(t *testing.T) {
	input := writeInput(t,
		fixture(t, "vendor_a.json"),
		fixture(t, "vendor_b.json"),
		`{"vendor": "vendor_z", "doc_id": "../escape", "payload": {}}`,
	)
	outDir := t.TempDir()
	var stdout bytes.Buffer

	out, err := run(context.Background(), newService(t), &options{inputPath: input, outputDir: outDir}, &stdout)
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	assert.Equal(t, 3, out.Summary.Total)
	assert.Equal(t, 2, out.Summary.Succeeded)
	assert.Equal(t, 1, out.Summary.Failed)

	var printed pipeline.BatchSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &printed))
	assert.Equal(t, "batch-1", printed.BatchID)

	record, err := os.ReadFile(filepath.Join(outDir, "batch-1", "0000-va-001.json"))
	require.NoError(t, err)
	var shape map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(record, &shape))
	for _, key := range []string{"doc_id", "extraction", "normalized", "validation", "routing"} {
		assert.Contains(t, shape, key)
	}

	failed, err := os.ReadFile(filepath.Join(outDir, "batch-1", "0002-__escape.json"))
	require.NoError(t, err)
	assert.Contains(t, string(failed), "processing_error")

	_, err = os.Stat(filepath.Join(outDir, "batch-1", "_summary.json"))
	assert.NoError(t, err)
}

func TestRun_RepeatedDocIDsKeepBothRecords(t *testing.T) {
	doc := fixture(t, "vendor_a.json")
	input := writeInput(t, doc, doc, `{"vendor": "vendor_z", "doc_id": "_summary", "payload": {}}`)
	outDir := t.TempDir()

	_, err := run(context.Background(), newService(t), &options{inputPath: input, outputDir: outDir}, io.Discard)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(outDir, "batch-1"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"0000-va-001.json", "0001-va-001.json", "0002-_summary.json", "_summary.json"}, names)
}

func TestRun_Errors(t *testing.T) {
	svc := newService(t)

	_, err := run(context.Background(), svc, &options{inputPath: filepath.Join(t.TempDir(), "missing.json")}, io.Discard)
	assert.Error(t, err)

	_, err = run(context.Background(), svc, &options{inputPath: writeInput(t)}, io.Discard)
	assert.Error(t, err, "empty batch")

	notArray := filepath.Join(t.TempDir(), "object.json")
	require.NoError(t, os.WriteFile(notArray, []byte(`{"vendor": "vendor_a"}`), 0o600))
	_, err = run(context.Background(), svc, &options{inputPath: notArray}, io.Discard)
	assert.Error(t, err)
}
