package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pacs-databridge/app/bootstrap"
	"github.com/pacs-databridge/app/config"
	"github.com/pacs-databridge/app/logging"
	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/app/services"
	"github.com/pacs-databridge/internal/ingest"
	"github.com/pacs-databridge/internal/parcels"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// permitMatch is one NDJSON output line.
type permitMatch struct {
	PermitNumber string              `json:"permit_number"`
	ParcelNumber string              `json:"parcel_number,omitempty"`
	SiteAddress  string              `json:"site_address"`
	Result       *models.MatchResult `json:"result"`
}

type workerFlags struct {
	configPath  string
	parcelsPath string
	output      string
	summary     string
}

func main() {
	var f workerFlags
	cmd := &cobra.Command{
		Use:          "worker PERMIT_FILE",
		Short:        "Match permit site addresses against the parcel roll",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, args[0])
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "config file (default config/databridge.yaml)")
	cmd.Flags().StringVar(&f.parcelsPath, "parcels", "", "parcel CSV to load into the in-memory source")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "NDJSON output path (default worker.output_path, else stdout)")
	cmd.Flags().StringVar(&f.summary, "summary", "", "summary JSON path (default worker.summary_path)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, f workerFlags, permitPath string) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.App.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer app.Close(context.Background())

	if f.parcelsPath != "" {
		n, err := loadParcels(app.Memory, f.parcelsPath)
		if err != nil {
			return err
		}
		logger.Info("Loaded parcels", zap.String("path", f.parcelsPath), zap.Int("parcels", n))
	}

	permits, err := ingest.NewPermitParser(app.Normalizer, logger).ParseFile(permitPath)
	if err != nil {
		return fmt.Errorf("read permits: %w", err)
	}
	addresses := make([]string, len(permits))
	for i, p := range permits {
		addresses[i] = p.SiteAddress
	}

	startTime := time.Now()
	bm := services.NewBatchMatcher(app.Match, cfg.Worker.Concurrency, cfg.Worker.LookupsPerSecond)
	results, runErr := bm.Run(ctx, addresses, requests.MatchOptions{}, func(done int) {
		if done%100 == 0 {
			logger.Info("Worker progress", zap.Int("done", done), zap.Int("total", len(addresses)))
		}
	})

	out := firstNonEmpty(f.output, cfg.Worker.OutputPath)
	if err := writeTo(out, func(w io.Writer) error { return writeMatches(w, permits, results) }); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	summary := services.Summarize(results)
	logger.Info("Worker finished",
		zap.Int("permits", len(permits)),
		zap.Int("matched", summary.StatusCounts[models.StatusMatched]),
		zap.Float64("mean_confidence", summary.MeanConfidence),
		zap.Duration("elapsed", time.Since(startTime)))
	if path := firstNonEmpty(f.summary, cfg.Worker.SummaryPath); path != "" {
		if err := writeTo(path, func(w io.Writer) error { return writeSummary(w, summary) }); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return runErr
}

func loadParcels(ms *parcels.MemorySource, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open parcels: %w", err)
	}
	defer file.Close()
	list, err := parcels.LoadParcelsCSV(file)
	if err != nil {
		return 0, fmt.Errorf("parse parcels: %w", err)
	}
	ms.Load(list)
	return ms.Len(), nil
}

// writeMatches emits one line per permit that was processed; permits left
// unprocessed by an interrupted run are skipped.
func writeMatches(w io.Writer, permits []ingest.Permit, results []*models.MatchResult) error {
	enc := json.NewEncoder(w)
	for i, r := range results {
		if r == nil {
			continue
		}
		p := permits[i]
		if err := enc.Encode(permitMatch{
			PermitNumber: p.PermitNumber,
			ParcelNumber: p.ParcelNumber,
			SiteAddress:  p.SiteAddress,
			Result:       r,
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(w io.Writer, summary models.BatchSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// writeTo opens path for writing, or uses stdout when path is empty.
func writeTo(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(file)
	if err := fn(bw); err != nil {
		file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
