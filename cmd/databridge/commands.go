package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pacs-databridge/app/bootstrap"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/app/services"
	"github.com/pacs-databridge/internal/external"
	"github.com/pacs-databridge/internal/ingest"
	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
	"github.com/pacs-databridge/internal/parcels"
	"github.com/spf13/cobra"
)

// inputAddresses returns args, or stdin lines when no args were given.
func inputAddresses(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var out []string
	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) createNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [address...]",
		Short: "Print the normalized form of each address",
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := inputAddresses(cmd, args)
			if err != nil {
				return err
			}
			n := normalizer.NewAddressNormalizer()
			for _, a := range addrs {
				fmt.Fprintln(cmd.OutOrStdout(), n.Normalize(a))
			}
			return nil
		},
	}
}

type parseOutput struct {
	Input        string                   `json:"input"`
	Standardized string                   `json:"standardized"`
	Parsed       normalizer.ParsedAddress `json:"parsed"`
	Libpostal    *external.LP             `json:"libpostal,omitempty"`
}

func (c *cli) createParseCmd() *cobra.Command {
	var withLibpostal bool
	cmd := &cobra.Command{
		Use:   "parse [address...]",
		Short: "Parse addresses into components",
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := inputAddresses(cmd, args)
			if err != nil {
				return err
			}
			n := normalizer.NewAddressNormalizer()
			out := make([]parseOutput, 0, len(addrs))
			for _, a := range addrs {
				parsed := n.Parse(a)
				po := parseOutput{Input: a, Standardized: parsed.Standardized(), Parsed: parsed}
				if withLibpostal {
					lp, err := external.ExtractWithLibpostal(a)
					if err != nil {
						return fmt.Errorf("libpostal: %w", err)
					}
					po.Libpostal = &lp
				}
				out = append(out, po)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&withLibpostal, "libpostal", false, "also parse with libpostal (requires -tags libpostal)")
	return cmd
}

func (c *cli) createMatchCmd() *cobra.Command {
	var (
		parcelsPath   string
		minConfidence float64
		maxResults    int
	)
	cmd := &cobra.Command{
		Use:   "match [address...]",
		Short: "Match addresses against a parcel CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := inputAddresses(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			logger := c.logger()

			m, err := matcher.NewMatcher(nil, cfg.MatcherConfig(), logger)
			if err != nil {
				return err
			}
			ms := parcels.NewMemorySource(m.Normalizer(), cfg.Database.Limit)
			file, err := os.Open(parcelsPath)
			if err != nil {
				return fmt.Errorf("open parcels: %w", err)
			}
			list, err := parcels.LoadParcelsCSV(file)
			file.Close()
			if err != nil {
				return fmt.Errorf("parse parcels: %w", err)
			}
			ms.Load(list)

			svc := services.NewMatchService(m, ms, nil, nil, services.Thresholds{
				MinConfidence: cfg.Matching.MinConfidence,
				ReviewLow:     cfg.Matching.ReviewLow,
				MatchedHigh:   cfg.Matching.MatchedHigh,
				MaxResults:    cfg.Matching.MaxResults,
			}, logger)

			var opts requests.MatchOptions
			if cmd.Flags().Changed("min-confidence") {
				opts.MinConfidence = &minConfidence
			}
			if cmd.Flags().Changed("max-results") {
				opts.MaxResults = &maxResults
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, a := range addrs {
				result, _, err := svc.MatchAddress(cmd.Context(), a, opts)
				if err != nil {
					result = services.ErrorResult(a, err)
				}
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&parcelsPath, "parcels", "", "parcel CSV (parcel_id plus address or street columns)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", matcher.DefaultMinConfidence, "minimum confidence to report")
	cmd.Flags().IntVar(&maxResults, "max-results", 5, "maximum matches per address")
	_ = cmd.MarkFlagRequired("parcels")
	return cmd
}

func (c *cli) createPermitsCmd() *cobra.Command {
	var improvements bool
	cmd := &cobra.Command{
		Use:   "permits [filename]",
		Short: "Parse a municipal permit report (.csv or .xlsx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pp := ingest.NewPermitParser(normalizer.NewAddressNormalizer(), c.logger())
			permits, err := pp.ParseFile(args[0])
			if err != nil {
				return err
			}
			if improvements {
				pp.ExtractImprovements(permits)
			}
			return writeJSON(cmd.OutOrStdout(), permits)
		},
	}
	cmd.Flags().BoolVar(&improvements, "improvements", true, "analyze descriptions for improvement details")
	return cmd
}

func (c *cli) createPropertyCmd() *cobra.Command {
	var (
		sheet       string
		skipRows    int
		invalidOnly bool
	)
	cmd := &cobra.Command{
		Use:   "property [filename]",
		Short: "Standardize a personal property declaration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pp := ingest.NewPropertyParser(nil, normalizer.NewAddressNormalizer(), c.logger())
			records, err := pp.ParseFile(args[0], sheet, skipRows, nil)
			if err != nil {
				return err
			}
			if invalidOnly {
				kept := records[:0]
				for _, r := range records {
					if !r.Valid() {
						kept = append(kept, r)
					}
				}
				records = kept
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name for .xlsx files (default first sheet)")
	cmd.Flags().IntVar(&skipRows, "skip-rows", 0, "banner rows before the header")
	cmd.Flags().BoolVar(&invalidOnly, "invalid", false, "print only rows that failed validation")
	return cmd
}

func (c *cli) createIndexParcelsCmd() *cobra.Command {
	var clearIndex bool
	cmd := &cobra.Command{
		Use:   "index-parcels [filename]",
		Short: "Load a parcel CSV into the Meilisearch index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := bootstrap.New(ctx, cfg, c.logger())
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			if app.Searcher == nil {
				return errors.New("meilisearch is not configured or unreachable")
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			result, err := app.Admin.IndexParcels(ctx, file, args[0], clearIndex)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&clearIndex, "clear", false, "delete existing documents first")
	return cmd
}
