// Package metrics 以 Prometheus 文本格式暴露 HTTP 请求、智能体运行与工具调用的统计。
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Outcome 值用于 ObserveAgentRun。
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type routeKey struct {
	handler string
	method  string
}

type runKey struct {
	channel string
	outcome string
}

type toolKey struct {
	tool    string
	outcome string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// Collector 汇总所有指标，零值不可用，使用 NewCollector 创建。
type Collector struct {
	mu          sync.Mutex
	requests    map[requestKey]uint64
	errors      map[routeKey]uint64
	latency     map[routeKey]*histogram
	runs        map[runKey]uint64
	runLatency  map[string]*histogram
	tools       map[toolKey]uint64
	activeConns int64
}

// NewCollector 创建空的指标集合。
func NewCollector() *Collector {
	return &Collector{
		requests:   make(map[requestKey]uint64),
		errors:     make(map[routeKey]uint64),
		latency:    make(map[routeKey]*histogram),
		runs:       make(map[runKey]uint64),
		runLatency: make(map[string]*histogram),
		tools:      make(map[toolKey]uint64),
	}
}

var defaultCollector = NewCollector()

// Default 返回进程级的指标集合。
func Default() *Collector { return defaultCollector }

// ObserveHTTPRequest 记录一次 HTTP 请求。
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	defaultCollector.ObserveHTTPRequest(handler, method, status, duration)
}

// ObserveHTTPRequest 记录一次 HTTP 请求，5xx 同时计入错误数。
func (c *Collector) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{handler: handler, method: method, code: strconv.Itoa(status)}]++
	key := routeKey{handler: handler, method: method}
	if status >= 500 {
		c.errors[key]++
	}
	hist := c.latency[key]
	if hist == nil {
		hist = newHistogram()
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveAgentRun 记录一次智能体运行。
func (c *Collector) ObserveAgentRun(channel, outcome string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runs[runKey{channel: channel, outcome: outcome}]++
	hist := c.runLatency[channel]
	if hist == nil {
		hist = newHistogram()
		c.runLatency[channel] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveToolCall 记录一次工具调用的结果。
func (c *Collector) ObserveToolCall(tool, outcome string) {
	if tool == "" {
		tool = "unknown"
	}
	c.mu.Lock()
	c.tools[toolKey{tool: tool, outcome: outcome}]++
	c.mu.Unlock()
}

// WebSocketOpened 与 WebSocketClosed 维护当前 WebSocket 连接数。
func (c *Collector) WebSocketOpened() {
	c.mu.Lock()
	c.activeConns++
	c.mu.Unlock()
}

// WebSocketClosed 见 WebSocketOpened。
func (c *Collector) WebSocketClosed() {
	c.mu.Lock()
	if c.activeConns > 0 {
		c.activeConns--
	}
	c.mu.Unlock()
}

func newHistogram() *histogram {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// observe 采用累计桶，超出最后一个桶的值只计入 +Inf（即 count）。
func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
}

// Handler 暴露默认指标集合。
func Handler() http.Handler {
	return defaultCollector.Handler()
}

// Handler 以 Prometheus 文本格式输出指标。
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, c.Render())
	})
}

type series struct {
	labels string
	value  string
}

type histSeries struct {
	labels string
	hist   histogram
}

// Render 返回当前指标的文本表示，序列按标签排序。
func (c *Collector) Render() string {
	c.mu.Lock()
	requests := make([]series, 0, len(c.requests))
	for key, value := range c.requests {
		requests = append(requests, series{labels: labels("handler", key.handler, "method", key.method, "code", key.code), value: strconv.FormatUint(value, 10)})
	}
	errs := make([]series, 0, len(c.errors))
	for key, value := range c.errors {
		errs = append(errs, series{labels: labels("handler", key.handler, "method", key.method), value: strconv.FormatUint(value, 10)})
	}
	latency := make([]histSeries, 0, len(c.latency))
	for key, hist := range c.latency {
		latency = append(latency, histSeries{labels: labels("handler", key.handler, "method", key.method), hist: hist.clone()})
	}
	runs := make([]series, 0, len(c.runs))
	for key, value := range c.runs {
		runs = append(runs, series{labels: labels("channel", key.channel, "outcome", key.outcome), value: strconv.FormatUint(value, 10)})
	}
	runLatency := make([]histSeries, 0, len(c.runLatency))
	for channel, hist := range c.runLatency {
		runLatency = append(runLatency, histSeries{labels: labels("channel", channel), hist: hist.clone()})
	}
	tools := make([]series, 0, len(c.tools))
	for key, value := range c.tools {
		tools = append(tools, series{labels: labels("tool", key.tool, "outcome", key.outcome), value: strconv.FormatUint(value, 10)})
	}
	active := c.activeConns
	c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(2048)

	writeSeries(&builder, "agentkit_http_requests_total", "counter", "Total number of HTTP requests processed.", requests)
	writeSeries(&builder, "agentkit_http_request_errors_total", "counter", "Total number of HTTP requests that resulted in a server error.", errs)
	writeHistograms(&builder, "agentkit_http_request_duration_seconds", "HTTP request duration in seconds.", latency)
	writeSeries(&builder, "agentkit_agent_runs_total", "counter", "Total number of agent runs by channel and outcome.", runs)
	writeHistograms(&builder, "agentkit_agent_run_duration_seconds", "Agent run duration in seconds.", runLatency)
	writeSeries(&builder, "agentkit_tool_calls_total", "counter", "Total number of tool invocations by tool and outcome.", tools)
	writeSeries(&builder, "agentkit_websocket_connections", "gauge", "Number of open chat WebSocket connections.",
		[]series{{value: strconv.FormatInt(active, 10)}})

	return builder.String()
}

func writeSeries(b *strings.Builder, name, kind, help string, values []series) {
	sort.Slice(values, func(i, j int) bool { return values[i].labels < values[j].labels })
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	for _, s := range values {
		fmt.Fprintf(b, "%s%s %s\n", name, s.labels, s.value)
	}
}

func writeHistograms(b *strings.Builder, name, help string, values []histSeries) {
	sort.Slice(values, func(i, j int) bool { return values[i].labels < values[j].labels })
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s histogram\n", name, help, name)
	for _, s := range values {
		inner := strings.TrimSuffix(strings.TrimPrefix(s.labels, "{"), "}")
		for idx, bound := range s.hist.buckets {
			fmt.Fprintf(b, "%s_bucket{%s,le=\"%s\"} %d\n", name, inner, formatFloat(bound), s.hist.counts[idx])
		}
		fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, inner, s.hist.count)
		fmt.Fprintf(b, "%s_sum%s %s\n", name, s.labels, formatFloat(s.hist.sum))
		fmt.Fprintf(b, "%s_count%s %d\n", name, s.labels, s.hist.count)
	}
}

func (h *histogram) clone() histogram {
	return histogram{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

// labels 按 key/value 成对拼接标签，空参数返回空串。
func labels(pairs ...string) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", pairs[i], escape(pairs[i+1])))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
