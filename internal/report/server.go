package report

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultInvocationLimit is used when /invocations has no limit parameter.
const DefaultInvocationLimit = 50

// NewRouter serves metrics and recent invocations from j.
//
//	GET /metrics               Prometheus exposition
//	GET /invocations?limit=N   newest first, JSON
//	GET /summary               aggregated journal, JSON
//	GET /health
func NewRouter(j *Journal, reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/invocations", invocationsHandler(j)).Methods("GET")
	r.HandleFunc("/summary", summaryHandler(j)).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")
	return r
}

func invocationsHandler(j *Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := DefaultInvocationLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		results, err := j.Tail(limit)
		if err != nil {
			http.Error(w, "Failed to read journal", http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []*Result{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"invocations": results,
			"count":       len(results),
		})
	}
}

func summaryHandler(j *Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		results, skipped, err := j.ReadAll()
		if err != nil {
			http.Error(w, "Failed to read journal", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Summarize(results, skipped))
	}
}
