// Package main provides the CLI that routes a file of vendor documents as
// one batch and writes the audit records and batch summary to disk.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/erp/invoicerouter/internal/application/pipeline"
	"github.com/erp/invoicerouter/internal/bootstrap"
	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/erp/invoicerouter/internal/infrastructure/config"
	"github.com/erp/invoicerouter/internal/infrastructure/logger"
	"github.com/erp/invoicerouter/internal/infrastructure/storage"
	"github.com/erp/invoicerouter/internal/infrastructure/vendor"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Version information (populated at build time)
var (
	version   = "dev"
	gitCommit = "unknown"
)

// Exit codes
const (
	exitOK             = 0
	exitError          = 1
	exitUsage          = 2
	exitDocumentErrors = 3
)

type options struct {
	configPath  string
	inputPath   string
	outputDir   string
	concurrency int
	strict      bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("invroute-batch", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to config.toml (default: search . ./config /app)")
	fs.StringVarP(&opts.inputPath, "input", "i", "", "JSON array of vendor documents (required)")
	fs.StringVarP(&opts.outputDir, "output", "o", "", "Directory for audit records and the batch summary")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "Override pipeline.batch_concurrency")
	fs.BoolVar(&opts.strict, "strict", false, "Exit with status 3 when any document fails processing")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Invoice batch router

USAGE:
    invroute-batch --input <file> [--output <dir>] [options]

DESCRIPTION:
    Runs every document of the input file through normalize, validate and
    route. Audit records are written to <dir>/<batch_id>/<doc_id>.json and the
    batch summary to <dir>/<batch_id>/_summary.json. When artifact storage is
    enabled in the configuration, both are also published to the bucket.

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}
	if opts.inputPath == "" {
		fs.Usage()
		return nil, errors.New("--input is required")
	}
	if opts.concurrency < 0 {
		return nil, fmt.Errorf("--concurrency must not be negative, got %d", opts.concurrency)
	}
	return opts, nil
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}
	if opts.showVersion {
		fmt.Printf("invroute-batch %s (commit %s)\n", version, gitCommit)
		return exitOK
	}

	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitError
	}
	if opts.concurrency > 0 {
		cfg.Pipeline.BatchConcurrency = opts.concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, logsProvider, err := bootstrap.NewLogger(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitError
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	rt, err := bootstrap.New(ctx, cfg, log, logsProvider)
	if err != nil {
		log.Error("Failed to initialize pipeline", zap.Error(err))
		return exitError
	}
	defer func() {
		if err := rt.Shutdown(context.Background()); err != nil {
			log.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	out, err := run(ctx, rt.Service, opts, os.Stdout)
	if err != nil {
		log.Error("Batch failed", zap.Error(err))
		return exitError
	}
	if opts.strict && out.Summary.Failed > 0 {
		return exitDocumentErrors
	}
	return exitOK
}

// batchRunner is the pipeline surface the command needs
type batchRunner interface {
	ProcessBatch(ctx context.Context, docs []invoice.VendorDocument) (*pipeline.BatchResult, error)
}

// run decodes the input file, processes it as one batch, writes the
// artifacts under opts.outputDir and prints the summary to stdout.
func run(ctx context.Context, runner batchRunner, opts *options, stdout io.Writer) (*pipeline.BatchResult, error) {
	data, err := os.ReadFile(opts.inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	docs, err := vendor.DecodeBatch(data)
	if err != nil {
		return nil, err
	}

	out, err := runner.ProcessBatch(ctx, docs)
	if err != nil {
		return nil, err
	}

	summary, err := out.Summary.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch summary: %w", err)
	}

	if opts.outputDir != "" {
		if err := writeArtifacts(opts.outputDir, out, summary); err != nil {
			return nil, err
		}
	}

	if _, err := fmt.Fprintln(stdout, string(summary)); err != nil {
		return nil, err
	}
	return out, nil
}

func writeArtifacts(dir string, out *pipeline.BatchResult, summary []byte) error {
	for i, res := range out.Results {
		docID := res.DocID
		if docID == "" {
			docID = fmt.Sprintf("unidentified-%d", i)
		}
		data, err := res.Record.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal audit record %q: %w", docID, err)
		}
		if err := writeFile(filepath.Join(dir, filepath.FromSlash(storage.AuditKey("", out.BatchID, i, docID))), data); err != nil {
			return err
		}
	}
	return writeFile(filepath.Join(dir, filepath.FromSlash(storage.SummaryKey("", out.BatchID))), summary)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
