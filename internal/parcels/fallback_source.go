package parcels

import (
	"context"
	"errors"
	"fmt"

	"github.com/pacs-databridge/internal/matcher"
	"go.uber.org/zap"
)

// NamedSource labels a Source for logging.
type NamedSource struct {
	Name   string
	Source Source
}

// FallbackSource asks each source in order and returns the first non-empty
// candidate list. A failing source is logged and skipped; the error is only
// returned when every source failed.
type FallbackSource struct {
	sources []NamedSource
	logger  *zap.Logger
}

func NewFallbackSource(logger *zap.Logger, sources ...NamedSource) *FallbackSource {
	return &FallbackSource{sources: sources, logger: logger}
}

func (fs *FallbackSource) LookupCandidates(ctx context.Context, hint Hint) ([]matcher.Candidate, error) {
	var errs []error
	for _, ns := range fs.sources {
		cands, err := ns.Source.LookupCandidates(ctx, hint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fs.logger.Warn("candidate source failed, trying next",
				zap.String("source", ns.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ns.Name, err))
			continue
		}
		if len(cands) > 0 {
			fs.logger.Debug("candidates found", zap.String("source", ns.Name), zap.Int("count", len(cands)))
			return cands, nil
		}
	}
	if len(errs) == len(fs.sources) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}
