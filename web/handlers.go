package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"skzb-service/config"
	"skzb-service/models"
	"skzb-service/services"
)

type matchesResponse struct {
	Success bool `json:"success"`
	models.Snapshot
}

// handleIndex 服务说明
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   config.ServiceName,
		"version":   config.Version,
		"endpoints": s.endpointDescriptors(),
	})
}

// handleMatches 返回当前缓存快照
// GET /api/matches
func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot(r.Context())

	body, err := json.Marshal(matchesResponse{Success: true, Snapshot: snap})
	if err != nil {
		s.log.Errorf("Failed to encode matches: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, s.matchesFailure(err.Error()))
		return
	}
	writeBody(w, http.StatusOK, body)
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   s.timestamp(),
	})
}

// handleTest 直接探测数据源
// GET /api/test
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if !s.probeLimiter.Allow() {
		s.writeJSON(w, http.StatusTooManyRequests, s.failure("请求过于频繁，请稍后再试"))
		return
	}

	res, err := s.prober.Probe(r.Context())
	if err != nil {
		s.log.Errorf("Source probe failed: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, s.failure(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"source_status":    res.StatusCode,
		"source_available": res.Available,
		"response_size":    res.ResponseSize,
		"timestamp":        s.timestamp(),
	})
}

// handleHistory 最近归档的快照
// GET /api/history?limit=20
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil || !s.history.Enabled() {
		s.writeJSON(w, http.StatusServiceUnavailable, s.failure("快照归档未启用"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snapshots, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.Errorf("Failed to load history: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, s.failure("查询归档失败"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"total":     len(snapshots),
		"snapshots": snapshots,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"success":             false,
		"error":               "API端点未找到",
		"available_endpoints": s.endpointPaths(),
		"timestamp":           s.timestamp(),
	})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusMethodNotAllowed, s.failure("不支持的请求方法: "+r.Method))
}

// recoverer 把 handler 中的 panic 转为 500，不输出堆栈
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.Errorf("Panic serving %s %s: %v", r.Method, r.URL.Path, rec)

			body := s.failure("服务器内部错误")
			if r.URL.Path == "/api/matches" {
				body = s.matchesFailure("服务器内部错误")
			}
			s.writeJSON(w, http.StatusInternalServerError, body)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) timestamp() string {
	return s.now().Format(services.UpdateTimeLayout)
}

func (s *Server) failure(msg string) map[string]interface{} {
	return map[string]interface{}{
		"success":   false,
		"error":     msg,
		"timestamp": s.timestamp(),
	}
}

func (s *Server) matchesFailure(msg string) map[string]interface{} {
	body := s.failure(msg)
	body["matches"] = []models.MatchRecord{}
	body["total"] = 0
	return body
}

// writeJSON 先序列化再写出，序列化失败时返回 500
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.log.Errorf("Failed to encode response: %v", err)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"服务器内部错误"}`)
	}
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
