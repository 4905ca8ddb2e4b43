// Command latticedbd is the HTTP front end named by section 6: GET
// /health returns {"ok":true}; POST /query consumes {"sql": string} and
// returns {"ok": bool, "message": string, "headers": [string], "rows":
// [[value...]]}, with permissive CORS. /metrics exposes the engine's
// prometheus registry. Like cmd/latticedb, this is explicitly not core
// engineering credit (section 1) — a thin driver over the engine.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/latticedb/latticedb/internal/config"
	"github.com/latticedb/latticedb/internal/engine"
	"github.com/latticedb/latticedb/internal/metrics"
	"github.com/latticedb/latticedb/internal/sqlfront"
)

type server struct {
	eng sqlfront.Engine

	// sess is shared across requests so SAVE/LOAD/SET DP_EPSILON and the
	// last-referenced-table inference (sqlfront.Session.LastTable) behave
	// the same way a single REPL's session would; one mutex serializes
	// statement execution the way the engine's own locking does not make
	// concurrent scans-and-writes from unrelated requests safe against
	// one shared Session.
	mu   sync.Mutex
	sess *sqlfront.Session
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	OK      bool       `json:"ok"`
	Message string     `json:"message"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

func main() {
	cfg := config.FromEnv()

	var alert *engine.AlertHub
	if dsn := os.Getenv("LATTICEDB_SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			fmt.Fprintf(os.Stderr, "sentry init failed: %v\n", err)
		} else {
			alert = engine.NewAlertHub(sentry.CurrentHub())
			defer sentry.Flush(2e9)
		}
	}

	logger := engine.NewWriterLogger(os.Stderr)
	reg := metrics.NewRegistry()

	se, err := engine.Open(cfg, logger, reg, alert)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer se.Close()

	srv := &server{eng: se, sess: &sqlfront.Session{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/query", srv.handleQuery)
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Registerer, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Printf("latticedbd listening on %s", addr)
	if err := http.ListenAndServe(addr, withCORS(mux)); err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
}

// withCORS permits any origin, matching section 6's "CORS is
// permissive."
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(queryResponse{OK: false, Message: "POST only"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(queryResponse{OK: false, Message: err.Error()})
		return
	}

	s.mu.Lock()
	res, err := sqlfront.Run(s.eng, s.sess, req.SQL)
	s.mu.Unlock()
	if err != nil {
		json.NewEncoder(w).Encode(queryResponse{OK: false, Message: err.Error()})
		return
	}

	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = v.String()
		}
		rows[i] = cells
	}
	json.NewEncoder(w).Encode(queryResponse{
		OK:      true,
		Message: res.Message,
		Headers: res.Headers,
		Rows:    rows,
	})
}
