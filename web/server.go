package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"skzb-service/config"
	"skzb-service/database"
	"skzb-service/logger"
	"skzb-service/models"
	"skzb-service/scraper"
	"skzb-service/services"
)

// MatchProvider 提供当前快照（services.MatchCache）
type MatchProvider interface {
	Snapshot(ctx context.Context) models.Snapshot
}

// UpstreamProber 探测数据源可用性（scraper.Fetcher）
type UpstreamProber interface {
	Probe(ctx context.Context) (scraper.ProbeResult, error)
}

// HistoryStore 快照归档（database.SnapshotArchive）
type HistoryStore interface {
	Enabled() bool
	Recent(ctx context.Context, limit int) ([]database.SnapshotSummary, error)
}

// route 路由表条目；首页的 endpoints 和 404 的 available_endpoints 都由它生成
type route struct {
	method  string
	path    string
	handler http.HandlerFunc
}

type Server struct {
	config   *config.Config
	cache    MatchProvider
	prober   UpstreamProber
	history  HistoryStore
	wsHub    *Hub
	metrics  *services.Metrics
	upgrader websocket.Upgrader

	probeLimiter *rate.Limiter
	now          func() time.Time
	log          *logger.Logger

	once       sync.Once
	routes     []route
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(cfg *config.Config, cache MatchProvider, prober UpstreamProber) *Server {
	return &Server{
		config: cfg,
		cache:  cache,
		prober: prober,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 与 CORS 一致，允许所有来源
			},
		},
		// 探测直接打到上游，每 5 秒最多一次，突发 2 次
		probeLimiter: rate.NewLimiter(rate.Every(5*time.Second), 2),
		now:          time.Now,
		log:          logger.New("API"),
	}
}

// SetHistory 启用 /api/history
func (s *Server) SetHistory(h HistoryStore) {
	s.history = h
}

// SetHub 启用 /ws
func (s *Server) SetHub(h *Hub) {
	s.wsHub = h
}

// SetMetrics 启用 /metrics
func (s *Server) SetMetrics(m *services.Metrics) {
	s.metrics = m
}

// Handler 构建路由；在第一次调用后 Set* 不再生效
func (s *Server) Handler() http.Handler {
	s.once.Do(s.build)
	return s.handler
}

func (s *Server) build() {
	s.routes = []route{
		{http.MethodGet, "/", s.handleIndex},
		{http.MethodGet, "/api/matches", s.handleMatches},
		{http.MethodGet, "/api/health", s.handleHealth},
		{http.MethodGet, "/api/test", s.handleTest},
	}
	if s.history != nil {
		s.routes = append(s.routes, route{http.MethodGet, "/api/history", s.handleHistory})
	}
	if s.wsHub != nil {
		s.routes = append(s.routes, route{http.MethodGet, "/ws", s.handleWebSocket})
	}
	if s.metrics != nil {
		s.routes = append(s.routes, route{http.MethodGet, "/metrics", s.metrics.Handler().ServeHTTP})
	}

	router := mux.NewRouter()
	for _, rt := range s.routes {
		router.HandleFunc(rt.path, rt.handler).Methods(rt.method)
	}
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	// CORS配置
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	s.handler = c.Handler(s.recoverer(router))
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Printf("Listening on :%s", s.config.Port)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Errorf("Server shutdown error: %v", err)
	}
}

func (s *Server) endpointPaths() []string {
	out := make([]string, 0, len(s.routes))
	for _, rt := range s.routes {
		out = append(out, rt.path)
	}
	return out
}

func (s *Server) endpointDescriptors() []string {
	out := make([]string, 0, len(s.routes))
	for _, rt := range s.routes {
		out = append(out, rt.method+" "+rt.path)
	}
	return out
}
