package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/helpers/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobNotReady = errors.New("job has not finished")
	ErrBatchTooBig = errors.New("batch exceeds the address limit")
)

// BatchMatcher matches many addresses concurrently, optionally throttled.
type BatchMatcher struct {
	service     *MatchService
	concurrency int
	limiter     *rate.Limiter
}

// NewBatchMatcher runs up to concurrency lookups at a time. A positive
// perSecond caps the lookup rate.
func NewBatchMatcher(service *MatchService, concurrency int, perSecond float64) *BatchMatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	bm := &BatchMatcher{service: service, concurrency: concurrency}
	if perSecond > 0 {
		burst := int(math.Ceil(perSecond))
		bm.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return bm
}

// Run returns one result per address, in input order. A failed address
// yields an error result rather than aborting the batch; only context
// cancellation stops it. progress, if set, is called after each address.
func (bm *BatchMatcher) Run(ctx context.Context, addresses []string, opts requests.MatchOptions, progress func(done int)) ([]*models.MatchResult, error) {
	results := make([]*models.MatchResult, len(addresses))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bm.concurrency)
	for i, raw := range addresses {
		i, raw := i, raw
		g.Go(func() error {
			if bm.limiter != nil {
				if err := bm.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			result, _, err := bm.service.MatchAddress(gctx, raw, opts)
			if err != nil {
				result = ErrorResult(raw, err)
			}
			results[i] = result
			n := done.Add(1)
			if progress != nil {
				progress(int(n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch interrupted after %d of %d: %w", done.Load(), len(addresses), err)
	}
	return results, nil
}

// Summarize aggregates status counts and confidence statistics. Error
// results are counted but excluded from the confidence statistics.
func Summarize(results []*models.MatchResult) models.BatchSummary {
	summary := models.BatchSummary{StatusCounts: map[string]int{}}
	confidences := make([]float64, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		summary.Total++
		summary.StatusCounts[r.Status]++
		if r.Status != models.StatusError {
			confidences = append(confidences, r.Confidence)
		}
	}
	if len(confidences) > 0 {
		summary.MeanConfidence = stat.Mean(confidences, nil)
		if len(confidences) > 1 {
			summary.StdConfidence = stat.StdDev(confidences, nil)
		}
		summary.MinConfidence = floats.Min(confidences)
		summary.MaxConfidence = floats.Max(confidences)
	}
	if summary.Total > 0 {
		summary.MatchRate = float64(summary.StatusCounts[models.StatusMatched]) / float64(summary.Total)
	}
	return summary
}

// BatchService runs batch jobs in the background and keeps their results
// in memory.
type BatchService struct {
	matcher      *BatchMatcher
	maxAddresses int
	logger       *zap.Logger

	mu         sync.RWMutex
	jobs       map[string]*models.BatchJob
	jobResults map[string][]*models.MatchResult
	wg         sync.WaitGroup
}

// NewBatchService accepts jobs of up to maxAddresses addresses; 0 means no
// limit.
func NewBatchService(bm *BatchMatcher, maxAddresses int, logger *zap.Logger) *BatchService {
	return &BatchService{
		matcher:      bm,
		maxAddresses: maxAddresses,
		logger:       logger,
		jobs:         make(map[string]*models.BatchJob),
		jobResults:   make(map[string][]*models.MatchResult),
	}
}

// Submit registers a job and starts it. The job outlives the request that
// submitted it; ctx only bounds the job itself.
func (bs *BatchService) Submit(ctx context.Context, addresses []string, opts requests.MatchOptions) (*models.BatchJob, error) {
	if len(addresses) == 0 {
		return nil, errors.New("no addresses to match")
	}
	if bs.maxAddresses > 0 && len(addresses) > bs.maxAddresses {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooBig, len(addresses), bs.maxAddresses)
	}

	now := time.Now()
	job := &models.BatchJob{
		JobID:     utils.GenerateJobID(),
		Status:    models.JobStatusPending,
		Total:     len(addresses),
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	bs.mu.Lock()
	bs.jobs[job.JobID] = job
	snapshot := *job
	bs.mu.Unlock()

	bs.wg.Add(1)
	go func() {
		defer bs.wg.Done()
		bs.process(ctx, job.JobID, addresses, opts)
	}()
	return &snapshot, nil
}

func (bs *BatchService) process(ctx context.Context, jobID string, addresses []string, opts requests.MatchOptions) {
	bs.update(jobID, func(j *models.BatchJob) {
		j.Status = models.JobStatusRunning
		j.Message = "processing"
	})

	results, err := bs.matcher.Run(ctx, addresses, opts, func(done int) {
		bs.update(jobID, func(j *models.BatchJob) {
			if done > j.Processed {
				j.Processed = done
			}
		})
	})

	summary := Summarize(results)
	bs.mu.Lock()
	bs.jobResults[jobID] = results
	bs.mu.Unlock()

	bs.update(jobID, func(j *models.BatchJob) {
		now := time.Now()
		j.CompletedAt = &now
		j.Summary = &summary
		if err != nil {
			j.Status = models.JobStatusFailed
			j.Message = err.Error()
			return
		}
		j.Status = models.JobStatusDone
		j.Message = "completed"
	})

	if err != nil {
		bs.logger.Error("Batch job failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	bs.logger.Info("Batch job completed",
		zap.String("job_id", jobID),
		zap.Int("total_addresses", len(addresses)),
		zap.Float64("match_rate", summary.MatchRate))
}

func (bs *BatchService) update(jobID string, fn func(*models.BatchJob)) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if job, ok := bs.jobs[jobID]; ok {
		fn(job)
		job.UpdatedAt = time.Now()
	}
}

// GetJobStatus returns a snapshot of the job.
func (bs *BatchService) GetJobStatus(jobID string) (*models.BatchJob, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	job, ok := bs.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	snapshot := *job
	return &snapshot, nil
}

// GetJobResults returns the results of a finished job. Interrupted jobs
// keep nil entries for the addresses never reached.
func (bs *BatchService) GetJobResults(jobID string) ([]*models.MatchResult, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if _, ok := bs.jobs[jobID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	results, ok := bs.jobResults[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotReady, jobID)
	}
	return results, nil
}

// GetJobResultsStream feeds a finished job's results through a channel,
// skipping unreached entries.
func (bs *BatchService) GetJobResultsStream(jobID string) (<-chan *models.MatchResult, error) {
	results, err := bs.GetJobResults(jobID)
	if err != nil {
		return nil, err
	}
	ch := make(chan *models.MatchResult, 100)
	go func() {
		defer close(ch)
		for _, r := range results {
			if r != nil {
				ch <- r
			}
		}
	}()
	return ch, nil
}

// Wait blocks until every submitted job has finished.
func (bs *BatchService) Wait() {
	bs.wg.Wait()
}

// JobCounts tallies jobs by status.
func (bs *BatchService) JobCounts() map[string]int {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	counts := make(map[string]int)
	for _, j := range bs.jobs {
		counts[j.Status]++
	}
	return counts
}
