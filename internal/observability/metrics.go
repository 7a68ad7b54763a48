package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/platform/envutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	stageLatency     *HistogramVec
	transitions      *CounterVec
	jobFailures      *CounterVec
	jobWarnings      *CounterVec
	validationReject *CounterVec
	cacheLookups     *CounterVec
	duplicateMatches *CounterVec
	courseWrites     *CounterVec
	aggregateOps     *HistogramVec
	aggregateRetries *CounterVec
	aggregateConfl   *CounterVec
	llmRequests      *CounterVec
	llmTokens        *CounterVec
	staleSwept       *Counter
	workerPanics     *Counter

	queueDepth *GaugeVec
	redisUp    *Gauge
	redisPing  *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when disabled. All methods are
// safe on a nil receiver.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("sb_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"sb_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		apiInflight: NewGauge("sb_api_inflight_requests", "In-flight API requests."),
		stageLatency: NewHistogramVec(
			"sb_ingest_stage_duration_seconds",
			"Pipeline stage duration by stage/status.",
			[]string{"stage", "status"},
			[]float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		transitions:      NewCounterVec("sb_ingest_transitions_total", "Job state transitions.", []string{"from", "to"}),
		jobFailures:      NewCounterVec("sb_ingest_failures_total", "Terminal job failures by error kind.", []string{"kind"}),
		jobWarnings:      NewCounterVec("sb_ingest_warnings_total", "Non-fatal job warnings by kind.", []string{"kind"}),
		validationReject: NewCounterVec("sb_validation_rejections_total", "Uploads rejected by the validator.", []string{"reason"}),
		cacheLookups:     NewCounterVec("sb_duplicate_cache_lookups_total", "Duplicate cache lookups by result.", []string{"result"}),
		duplicateMatches: NewCounterVec("sb_duplicate_matches_total", "Duplicate matches returned by access level.", []string{"access_level"}),
		courseWrites:     NewCounterVec("sb_course_writes_total", "Course creator outcomes.", []string{"action", "status"}),
		aggregateOps: NewHistogramVec(
			"sb_aggregate_operation_duration_seconds",
			"Transactional write duration by operation/status.",
			[]string{"operation", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		aggregateRetries: NewCounterVec("sb_aggregate_retries_total", "Transactional write retries by operation.", []string{"operation"}),
		aggregateConfl:   NewCounterVec("sb_aggregate_conflicts_total", "Transactional write conflicts by operation.", []string{"operation"}),
		llmRequests:      NewCounterVec("sb_llm_requests_total", "LLM parse requests by model/status.", []string{"model", "status"}),
		llmTokens:        NewCounterVec("sb_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
		staleSwept:       NewCounter("sb_ingest_stale_swept_total", "Jobs moved to STALE by the sweeper."),
		workerPanics:     NewCounter("sb_worker_panics_total", "Recovered worker panics."),
		queueDepth:       NewGaugeVec("sb_ingest_jobs", "Jobs by state.", []string{"state"}),
		redisUp:          NewGauge("sb_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing:        NewGauge("sb_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, p := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.stageLatency, m.transitions, m.jobFailures, m.jobWarnings,
		m.validationReject, m.cacheLookups, m.duplicateMatches,
		m.courseWrites, m.aggregateOps, m.aggregateRetries, m.aggregateConfl, m.llmRequests, m.llmTokens,
		m.staleSwept, m.workerPanics, m.queueDepth, m.redisUp, m.redisPing,
	} {
		if err := p.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.Observe(dur.Seconds(), stage, status)
}

func (m *Metrics) IncTransition(from, to jobs.State) {
	if m == nil {
		return
	}
	m.transitions.Inc(string(from), string(to))
	if to == jobs.StateStale {
		m.staleSwept.Inc()
	}
}

func (m *Metrics) IncFailure(kind jobs.ErrorKind) {
	if m == nil {
		return
	}
	m.jobFailures.Inc(string(kind))
}

func (m *Metrics) IncWarning(kind jobs.ErrorKind) {
	if m == nil {
		return
	}
	m.jobWarnings.Inc(string(kind))
}

func (m *Metrics) IncValidationReject(reason string) {
	if m == nil {
		return
	}
	m.validationReject.Inc(reason)
}

// IncCacheLookup records "hit", "miss" or "degraded".
func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.Inc(result)
}

func (m *Metrics) IncDuplicateMatch(accessLevel string) {
	if m == nil {
		return
	}
	m.duplicateMatches.Inc(accessLevel)
}

func (m *Metrics) IncCourseWrite(action, status string) {
	if m == nil {
		return
	}
	m.courseWrites.Inc(action, status)
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(dur.Seconds(), op, status)
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(op)
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConfl.Inc(op)
}

func (m *Metrics) ObserveLLMRequest(model, status string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(model, status)
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) IncWorkerPanic() {
	if m == nil {
		return
	}
	m.workerPanics.Inc()
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartJobQueueCollector periodically publishes job counts per state.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.collectQueueDepth(ctx, db); err != nil && log != nil {
					log.Warn("metrics: job queue depth query failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) collectQueueDepth(ctx context.Context, db *gorm.DB) error {
	var rows []struct {
		State string
		Count int64
	}
	if err := db.WithContext(ctx).
		Model(&jobs.IngestJob{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, s := range jobs.AllStates {
		m.queueDepth.Set(0, string(s))
	}
	for _, row := range rows {
		m.queueDepth.Set(float64(row.Count), row.State)
	}
	return nil
}
