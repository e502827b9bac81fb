package routes

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pacs-databridge/app/controllers"
	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/app/responses"
	"github.com/pacs-databridge/app/services"
	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
	"github.com/pacs-databridge/internal/parcels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router  *gin.Engine
	reviews *services.MemoryReviewStore
	batches *services.BatchService
}

func newTestServer(t *testing.T, checks map[string]controllers.HealthCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	n := normalizer.NewAddressNormalizer()
	m, err := matcher.NewMatcher(n, matcher.Config{CacheSize: 100}, logger)
	require.NoError(t, err)

	memory := parcels.NewMemorySource(n, 10)
	memory.Load([]parcels.Parcel{
		{ParcelID: "P-200", Address: "123 N Main St"},
		{ParcelID: "P-300", Address: "456 Oak Ave"},
	})

	reviews := services.NewMemoryReviewStore()
	cache := services.NewMemoryCacheService(100, time.Hour)
	thresholds := services.Thresholds{MinConfidence: 70, ReviewLow: 70, MatchedHigh: 90, MaxResults: 5}
	matchSvc := services.NewMatchService(m, memory, cache, reviews, thresholds, logger)
	batches := services.NewBatchService(services.NewBatchMatcher(matchSvc, 2, 0), 100, logger)
	admin := services.NewAdminService(nil, nil, memory, matchSvc, reviews, batches, logger)

	router := gin.New()
	SetupAllRoutes(router, Controllers{
		Address: controllers.NewAddressController(matchSvc, checks, logger),
		Jobs:    controllers.NewJobController(batches, context.Background(), logger),
		Reviews: controllers.NewReviewController(reviews, logger),
		Admin:   controllers.NewAdminController(admin, logger),
	}, logger)

	return &testServer{router: router, reviews: reviews, batches: batches}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNormalizeAndParse(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/v1/addresses/normalize", gin.H{"address": "123 n. main st, apt #4"})
	require.Equal(t, http.StatusOK, w.Code)
	norm := decode[responses.NormalizeResponse](t, w)
	assert.Equal(t, "123 NORTH MAIN STREET, APT 4", norm.Normalized)

	w = ts.do(t, http.MethodPost, "/v1/addresses/parse", gin.H{"address": "42 Elm St, Omaha, NE 68102"})
	require.Equal(t, http.StatusOK, w.Code)
	parsed := decode[responses.ParseResponse](t, w)
	assert.Equal(t, "42", parsed.Parsed.StreetNumber)
	assert.Equal(t, "OMAHA", parsed.Parsed.City)
	assert.Equal(t, "NE", parsed.Parsed.State)
	assert.Equal(t, "68102", parsed.Parsed.Zip)

	w = ts.do(t, http.MethodPost, "/v1/addresses/normalize", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/v1/addresses/match", gin.H{"address": "456 Oak Avenue"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[responses.MatchAddressResponse](t, w)
	assert.Equal(t, models.StatusMatched, resp.Result.Status)
	assert.Equal(t, "P-300", resp.Result.Matches[0].ID)
	assert.False(t, resp.CacheHit)

	w = ts.do(t, http.MethodPost, "/v1/addresses/match", gin.H{"address": "456 oak ave"})
	resp = decode[responses.MatchAddressResponse](t, w)
	assert.True(t, resp.CacheHit)

	w = ts.do(t, http.MethodPost, "/v1/addresses/match", gin.H{"address": "456 Oak Avenue", "options": gin.H{"min_confidence": 150}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	errResp := decode[responses.ErrorResponse](t, w)
	assert.Equal(t, responses.CodeInvalidArgument, errResp.Error)
	assert.NotEmpty(t, errResp.RequestID)

	w = ts.do(t, http.MethodPost, "/v1/addresses/match", gin.H{"options": gin.H{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, responses.CodeInvalidRequest, decode[responses.ErrorResponse](t, w).Error)
}

func TestReviewFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/v1/addresses/match", gin.H{"address": "123 Main Street"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusNeedsReview, decode[responses.MatchAddressResponse](t, w).Result.Status)

	w = ts.do(t, http.MethodGet, "/v1/reviews", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[responses.ReviewListResponse](t, w)
	require.Len(t, list.Reviews, 1)
	assert.Equal(t, int64(1), list.Pending)
	id := list.Reviews[0].ID.Hex()

	w = ts.do(t, http.MethodPost, "/v1/reviews/"+id+"/approve", gin.H{"reviewer_id": "assessor-7"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	action := decode[responses.ReviewActionResponse](t, w)
	assert.Equal(t, models.ReviewStatusApproved, action.Review.Status)
	assert.Equal(t, "P-200", *action.Review.ParcelID)

	w = ts.do(t, http.MethodPost, "/v1/reviews/"+id+"/reject", gin.H{"reviewer_id": "assessor-8"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/reviews/000000000000000000000000/approve", gin.H{"reviewer_id": "assessor-7"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/reviews/"+id+"/approve", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/reviews?status=all", nil)
	assert.Len(t, decode[responses.ReviewListResponse](t, w).Reviews, 1)
}

func TestBatchJobFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/v1/matches/jobs", gin.H{"addresses": []string{"456 Oak Avenue", "999 Nowhere Rd"}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	jobID := decode[responses.BatchMatchResponse](t, w).JobID
	require.NotEmpty(t, jobID)

	ts.batches.Wait()

	w = ts.do(t, http.MethodGet, "/v1/matches/jobs/"+jobID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[responses.JobStatusResponse](t, w)
	assert.Equal(t, models.JobStatusDone, status.Status)
	assert.Equal(t, 1.0, status.Progress)
	require.NotNil(t, status.Summary)
	assert.Equal(t, 1, status.Summary.StatusCounts[models.StatusMatched])
	assert.Equal(t, 1, status.Summary.StatusCounts[models.StatusNoCandidates])

	w = ts.do(t, http.MethodGet, "/v1/matches/jobs/"+jobID+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/matches/jobs/"+jobID+"/results?format=ndjson&gzip=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	var raws []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var r models.MatchResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		raws = append(raws, r.Raw)
	}
	assert.Equal(t, []string{"456 Oak Avenue", "999 Nowhere Rd"}, raws)

	w = ts.do(t, http.MethodGet, "/v1/matches/jobs/job_unknown/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, responses.CodeJobNotFound, decode[responses.ErrorResponse](t, w).Error)

	w = ts.do(t, http.MethodPost, "/v1/matches/jobs", gin.H{"addresses": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "parcels.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("parcel_id,address\nP-900,77 Pine Rd\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/parcels/index", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/v1/addresses/match", gin.H{"address": "77 Pine Road"})
	resp := decode[responses.MatchAddressResponse](t, w)
	require.NotEmpty(t, resp.Result.Matches)
	assert.Equal(t, "P-900", resp.Result.Matches[0].ID)
	assert.True(t, strings.HasPrefix(resp.ParcelVersion, "sha256:"))

	w = ts.do(t, http.MethodPost, "/v1/admin/cache/invalidate", gin.H{"all": true})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[services.SystemStats](t, w)
	assert.Equal(t, int64(1), stats.Matching.Processed)
	assert.Equal(t, resp.ParcelVersion, stats.ParcelVersion)

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/parcels/index", nil)
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndNotFound(t *testing.T) {
	ts := newTestServer(t, map[string]controllers.HealthCheck{
		"meilisearch": func(ctx context.Context) error { return nil },
	})
	w := ts.do(t, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[responses.HealthCheckResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Services["meilisearch"])

	degraded := newTestServer(t, map[string]controllers.HealthCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	w = degraded.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	notFound := decode[responses.ErrorResponse](t, rec)
	assert.Equal(t, responses.CodeNotFound, notFound.Error)
	assert.Equal(t, "req-123", notFound.RequestID)
}
