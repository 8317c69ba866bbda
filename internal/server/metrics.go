package server

import (
	"sort"
	"sync"
	"time"

	"task-file-drop/internal/uploads"
)

// maxDurationSamples bounds the per-route latency window.
const maxDurationSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	// Upload metrics
	uploadsTotal           int64
	uploadsExistTotal      int64
	uploadBytesTotal       int64
	uploadDurationTotal    time.Duration
	filesInsertedTotal     int64
	duplicatesSkippedTotal int64

	// Retrieval metrics
	retrievalsTotal        int64
	filesServedTotal       int64
	retrievalDurationTotal time.Duration

	storageFailuresTotal int64

	// System metrics
	requestsTotal    int64
	requestErrors5xx int64
	requestErrors4xx int64

	requestDurations map[string][]float64 // route -> durations in ms
}

// NewMetrics returns an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{requestDurations: make(map[string][]float64)}
}

// RecordUpload records a completed upload, including no-op re-submissions.
func (m *Metrics) RecordUpload(res uploads.Result, bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal++
	if res.Outcome == uploads.AlreadyExists {
		m.uploadsExistTotal++
	}
	m.uploadBytesTotal += bytes
	m.uploadDurationTotal += duration
	m.filesInsertedTotal += int64(res.NewFiles)
	m.duplicatesSkippedTotal += int64(res.Duplicates)
}

// RecordRetrieval records a successful file listing.
func (m *Metrics) RecordRetrieval(files int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrievalsTotal++
	m.filesServedTotal += int64(files)
	m.retrievalDurationTotal += duration
}

// RecordStorageFailure records a failed store read or write.
func (m *Metrics) RecordStorageFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storageFailuresTotal++
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++

	if statusCode >= 500 {
		m.requestErrors5xx++
	} else if statusCode >= 400 {
		m.requestErrors4xx++
	}
}

// RecordRequestDuration records the duration of a request for the latency summary.
func (m *Metrics) RecordRequestDuration(route string, durationMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	durations := append(m.requestDurations[route], durationMs)
	if len(durations) > maxDurationSamples {
		durations = durations[len(durations)-maxDurationSamples:]
	}
	m.requestDurations[route] = durations
}

// RequestDurationPercentiles returns p50/p95/p99 over the recent window for route.
func (m *Metrics) RequestDurationPercentiles(route string) (p50, p95, p99 float64) {
	m.mu.RLock()
	durations := m.requestDurations[route]
	sorted := make([]float64, len(durations))
	copy(sorted, durations)
	m.mu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)

	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[len(sorted)*95/100]
	p99 = sorted[len(sorted)*99/100]
	return
}

func (m *Metrics) routes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.requestDurations))
	for r := range m.requestDurations {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		UploadsTotal:           m.uploadsTotal,
		UploadsExistTotal:      m.uploadsExistTotal,
		UploadBytesTotal:       m.uploadBytesTotal,
		UploadAvgDurationMs:    avgDuration(m.uploadDurationTotal, m.uploadsTotal),
		FilesInsertedTotal:     m.filesInsertedTotal,
		DuplicatesSkippedTotal: m.duplicatesSkippedTotal,
		RetrievalsTotal:        m.retrievalsTotal,
		FilesServedTotal:       m.filesServedTotal,
		RetrievalAvgDurationMs: avgDuration(m.retrievalDurationTotal, m.retrievalsTotal),
		StorageFailuresTotal:   m.storageFailuresTotal,
		RequestsTotal:          m.requestsTotal,
		RequestErrors5xx:       m.requestErrors5xx,
		RequestErrors4xx:       m.requestErrors4xx,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	UploadsTotal           int64   `json:"uploads_total"`
	UploadsExistTotal      int64   `json:"uploads_exist_total"`
	UploadBytesTotal       int64   `json:"upload_bytes_total"`
	UploadAvgDurationMs    float64 `json:"upload_avg_duration_ms"`
	FilesInsertedTotal     int64   `json:"files_inserted_total"`
	DuplicatesSkippedTotal int64   `json:"duplicates_skipped_total"`

	RetrievalsTotal        int64   `json:"retrievals_total"`
	FilesServedTotal       int64   `json:"files_served_total"`
	RetrievalAvgDurationMs float64 `json:"retrieval_avg_duration_ms"`

	StorageFailuresTotal int64 `json:"storage_failures_total"`

	RequestsTotal    int64 `json:"requests_total"`
	RequestErrors5xx int64 `json:"request_errors_5xx"`
	RequestErrors4xx int64 `json:"request_errors_4xx"`
}

func avgDuration(total time.Duration, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(count)
}
