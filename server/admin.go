package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"multicaster/protocol"
)

// commandTimeout admin 请求等待循环处理的上限
const commandTimeout = 2 * time.Second

// NewAdminRouter 管理与监控接口
//
//	GET  /healthz
//	GET  /metrics
//	GET  /status
//	POST /admin/broadcast {"message":"..."}
//	POST /admin/kick      {"player_id":1}
//	GET  /ws/spectate
func NewAdminRouter(s *Server) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"tick":    s.Status().Tick,
			"metrics": s.metrics.Snapshot(),
		})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Status())
	})
	r.Route("/admin", func(sub chi.Router) {
		sub.Post("/broadcast", s.handleBroadcast)
		sub.Post("/kick", s.handleKick)
	})
	r.Get("/ws/spectate", s.HandleSpectate)
	return r
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Message) == "" {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(body.Message) > protocol.MaxTextSize {
		http.Error(w, "message too large", http.StatusBadRequest)
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	if err := s.Broadcast(ctx, body.Message); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.log.Infow("admin broadcast", "message", body.Message)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlayerID *int32 `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PlayerID == nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	found, err := s.Kick(ctx, PlayerID(*body.PlayerID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !found {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}
	s.log.Infow("admin kick", "player", *body.PlayerID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger 把访问日志写进注入的 zap logger
func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), commandTimeout)
}
