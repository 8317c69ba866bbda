// prometheus.go - Prometheus text exporter for the in-process metrics.
package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"task-file-drop/internal/store"
)

// prometheusHandler serves m in the Prometheus text exposition format.
func (m *Metrics) prometheusHandler(version string, started time.Time, circuits func() map[string]store.CircuitBreakerStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.Snapshot()

		var output strings.Builder

		output.WriteString("# HELP tfd_info Application version info\n")
		output.WriteString("# TYPE tfd_info gauge\n")
		output.WriteString(fmt.Sprintf("tfd_info{version=\"%s\"} 1\n\n", prometheusLabel(version)))

		writeCounter(&output, "tfd_requests_total", "Total number of HTTP requests", snapshot.RequestsTotal)

		output.WriteString("# HELP tfd_request_errors_total HTTP responses with an error status\n")
		output.WriteString("# TYPE tfd_request_errors_total counter\n")
		output.WriteString(fmt.Sprintf("tfd_request_errors_total{class=\"4xx\"} %d\n", snapshot.RequestErrors4xx))
		output.WriteString(fmt.Sprintf("tfd_request_errors_total{class=\"5xx\"} %d\n\n", snapshot.RequestErrors5xx))

		writeCounter(&output, "tfd_uploads_total", "Total number of upload requests that reached the store", snapshot.UploadsTotal)
		writeCounter(&output, "tfd_uploads_exist_total", "Uploads where every file already existed", snapshot.UploadsExistTotal)
		writeCounter(&output, "tfd_upload_bytes_total", "Payload bytes written by uploads", snapshot.UploadBytesTotal)
		writeCounter(&output, "tfd_files_inserted_total", "File records inserted", snapshot.FilesInsertedTotal)
		writeCounter(&output, "tfd_duplicates_skipped_total", "Uploaded files skipped because the name existed", snapshot.DuplicatesSkippedTotal)
		writeCounter(&output, "tfd_retrievals_total", "Successful file listings", snapshot.RetrievalsTotal)
		writeCounter(&output, "tfd_files_served_total", "File records returned by listings", snapshot.FilesServedTotal)
		writeCounter(&output, "tfd_storage_failures_total", "Failed store reads and writes", snapshot.StorageFailuresTotal)

		output.WriteString("# HELP tfd_request_duration_ms Request latency over the recent window\n")
		output.WriteString("# TYPE tfd_request_duration_ms summary\n")
		for _, route := range m.routes() {
			p50, p95, p99 := m.RequestDurationPercentiles(route)
			label := prometheusLabel(route)
			output.WriteString(fmt.Sprintf("tfd_request_duration_ms{route=\"%s\",quantile=\"0.5\"} %g\n", label, p50))
			output.WriteString(fmt.Sprintf("tfd_request_duration_ms{route=\"%s\",quantile=\"0.95\"} %g\n", label, p95))
			output.WriteString(fmt.Sprintf("tfd_request_duration_ms{route=\"%s\",quantile=\"0.99\"} %g\n", label, p99))
		}
		output.WriteString("\n")

		if circuits != nil {
			writeCircuits(&output, circuits())
		}

		output.WriteString("# HELP tfd_uptime_seconds Application uptime in seconds\n")
		output.WriteString("# TYPE tfd_uptime_seconds counter\n")
		output.WriteString(fmt.Sprintf("tfd_uptime_seconds %.0f\n", time.Since(started).Seconds()))

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(output.String()))
	}
}

func writeCounter(b *strings.Builder, name, help string, v int64) {
	b.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	b.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
	b.WriteString(fmt.Sprintf("%s %d\n\n", name, v))
}

func writeCircuits(b *strings.Builder, stats map[string]store.CircuitBreakerStats) {
	if len(stats) == 0 {
		return
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("# HELP tfd_store_circuit_open Whether the store circuit breaker is open\n")
	b.WriteString("# TYPE tfd_store_circuit_open gauge\n")
	for _, name := range names {
		open := 0
		if stats[name].State == store.StateOpen.String() {
			open = 1
		}
		b.WriteString(fmt.Sprintf("tfd_store_circuit_open{component=\"%s\"} %d\n", prometheusLabel(name), open))
	}
	b.WriteString("\n")

	b.WriteString("# HELP tfd_store_circuit_requests_total Store calls seen by the circuit breaker\n")
	b.WriteString("# TYPE tfd_store_circuit_requests_total counter\n")
	for _, name := range names {
		st := stats[name]
		label := prometheusLabel(name)
		b.WriteString(fmt.Sprintf("tfd_store_circuit_requests_total{component=\"%s\",result=\"total\"} %d\n", label, st.TotalRequests))
		b.WriteString(fmt.Sprintf("tfd_store_circuit_requests_total{component=\"%s\",result=\"failed\"} %d\n", label, st.FailedRequests))
		b.WriteString(fmt.Sprintf("tfd_store_circuit_requests_total{component=\"%s\",result=\"rejected\"} %d\n", label, st.RejectedRequests))
	}
	b.WriteString("\n")
}

// Helper function to format label safely for Prometheus
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}
