package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"metalsync/internal/orchestrator"
)

// syncer is the slice of the orchestrator the HTTP surface needs.
type syncer interface {
	Status() orchestrator.Status
	RequestPassiveLoad(ctx context.Context) orchestrator.Status
	RequestManualRefresh(ctx context.Context) orchestrator.RefreshResult
	Subscribe() listener
}

type refreshResponse struct {
	Refresh orchestrator.RefreshResult `json:"refresh"`
	Status  orchestrator.Status        `json:"status"`
}

func newRouter(o *orchestrator.Orchestrator, timeout time.Duration, log logrus.FieldLogger) http.Handler {
	return routes(orchestratorSyncer{o}, timeout, log)
}

func routes(s syncer, timeout time.Duration, log logrus.FieldLogger) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	api.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.Status())
	})
	api.HandleFunc("/api/load", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		writeJSON(w, http.StatusOK, s.RequestPassiveLoad(ctx))
	})
	api.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		res := s.RequestManualRefresh(ctx)
		code := http.StatusOK
		if !res.Allowed {
			code = http.StatusTooManyRequests
			if !res.ResetAt.IsZero() {
				w.Header().Set("Retry-After", retryAfter(res.ResetAt))
			}
		}
		writeJSON(w, code, refreshResponse{Refresh: res, Status: s.Status()})
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", recoverPanic(statusStream(s, log), log))
	mux.Handle("/", withJSONHeaders(withGzip(recoverPanic(limitBody(api), log))))
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "encode failure", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func retryAfter(resetAt time.Time) string {
	secs := int(time.Until(resetAt).Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return strconv.Itoa(secs)
}
