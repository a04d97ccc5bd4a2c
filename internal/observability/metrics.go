package observability

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/threadgraph/internal/platform/logger"
	"github.com/yungbote/threadgraph/internal/utils"
)

// Metrics collects process counters and serves them as Prometheus text on
// METRICS_ADDR. Everything is nil-safe: with metrics disabled, Current()
// returns nil and every observation is a no-op.
type Metrics struct {
	llmRequests  *CounterVec
	llmLatency   *HistogramVec
	llmTokensIn  *Counter
	llmTokensOut *Counter

	syncBatches   *Counter
	syncRecords   *Counter
	syncFailures  *Counter
	indexWindows  *Counter
	indexFailures *Counter
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return utils.GetEnvAsBool("METRICS_ENABLED", false, nil)
}

func Current() *Metrics {
	return instance
}

// Init builds the singleton and, when METRICS_ADDR is set, starts the scrape
// endpoint. Safe to call more than once.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		if !Enabled() {
			return
		}
		m := &Metrics{
			llmRequests: NewCounterVec("threadgraph_llm_requests_total",
				"LLM API requests by model, endpoint and status.",
				[]string{"model", "endpoint", "status"}),
			llmLatency: NewHistogramVec("threadgraph_llm_request_seconds",
				"LLM API request latency.",
				[]string{"endpoint"},
				[]float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60}),
			llmTokensIn:  NewCounter("threadgraph_llm_input_tokens_total", "LLM input tokens."),
			llmTokensOut: NewCounter("threadgraph_llm_output_tokens_total", "LLM output tokens."),
			syncBatches:  NewCounter("threadgraph_sync_batches_total", "Committed sync batches."),
			syncRecords:  NewCounter("threadgraph_sync_records_total", "Board posts synchronized."),
			syncFailures: NewCounter("threadgraph_sync_failures_total", "Rolled-back sync batches."),
			indexWindows: NewCounter("threadgraph_index_windows_total", "Windows upserted into the vector index."),
			indexFailures: NewCounter("threadgraph_index_failures_total",
				"Failed vector index batches."),
		}
		instance = m

		addr := strings.TrimSpace(os.Getenv("METRICS_ADDR"))
		if addr == "" {
			return
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           http.HandlerFunc(m.WriteHTTP),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				if log != nil {
					log.Warn("metrics endpoint stopped", "addr", addr, "error", err)
				}
			}
		}()
		if log != nil {
			log.Info("metrics endpoint listening", "addr", addr)
		}
	})
	return instance
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.llmRequests.WritePrometheus(w)
	_ = m.llmLatency.WritePrometheus(w)
	_ = m.llmTokensIn.WritePrometheus(w)
	_ = m.llmTokensOut.WritePrometheus(w)
	_ = m.syncBatches.WritePrometheus(w)
	_ = m.syncRecords.WritePrometheus(w)
	_ = m.syncFailures.WritePrometheus(w)
	_ = m.indexWindows.WritePrometheus(w)
	_ = m.indexFailures.WritePrometheus(w)
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(model, endpoint, status)
	m.llmLatency.Observe(dur.Seconds(), endpoint)
	if inputTokens > 0 {
		m.llmTokensIn.Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokensOut.Add(float64(outputTokens))
	}
}

func (m *Metrics) ObserveSyncBatch(records int) {
	if m == nil {
		return
	}
	m.syncBatches.Inc()
	m.syncRecords.Add(float64(records))
}

func (m *Metrics) ObserveSyncFailure() {
	if m == nil {
		return
	}
	m.syncFailures.Inc()
}

func (m *Metrics) ObserveIndexWindows(n int) {
	if m == nil {
		return
	}
	m.indexWindows.Add(float64(n))
}

func (m *Metrics) ObserveIndexFailure() {
	if m == nil {
		return
	}
	m.indexFailures.Inc()
}

// -------------------- primitives --------------------

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.Value())
	return err
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, c.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	counts     map[string][]float64
	sums       map[string]float64
	totals     map[string]float64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	return &HistogramVec{
		name:       name,
		help:       help,
		labelNames: labels,
		buckets:    buckets,
		counts:     map[string][]float64{},
		sums:       map[string]float64{},
		totals:     map[string]float64{},
	}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	counts, ok := h.counts[lbl]
	if !ok {
		counts = make([]float64, len(h.buckets))
		h.counts[lbl] = counts
	}
	for i, upper := range h.buckets {
		if v <= upper {
			counts[i]++
		}
	}
	h.sums[lbl] += v
	h.totals[lbl]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.totals))
	for k := range h.totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, lbl := range keys {
		counts := h.counts[lbl]
		for i, upper := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %f\n", h.name, mergeLabel(lbl, fmt.Sprintf("le=%q", fmt.Sprintf("%g", upper))), counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %f\n", h.name, mergeLabel(lbl, `le="+Inf"`), h.totals[lbl]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, lbl, h.sums[lbl]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %f\n", h.name, lbl, h.totals[lbl]); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(names))
	for i, n := range names {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%q", n, v))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func mergeLabel(lbl, extra string) string {
	if lbl == "" {
		return "{" + extra + "}"
	}
	return strings.TrimSuffix(lbl, "}") + "," + extra + "}"
}
