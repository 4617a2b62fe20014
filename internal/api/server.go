package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"AgentKit-Chat/internal/agent"
	"AgentKit-Chat/internal/bootstrap"
	"AgentKit-Chat/internal/observability/metrics"
	"AgentKit-Chat/internal/transcript"
	"AgentKit-Chat/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

// AgentService 提供当前的智能体与钱包状态。
type AgentService interface {
	Handle(ctx context.Context) (*bootstrap.Handle, error)
	WalletInfo() bootstrap.WalletInfo
	Tools() []bootstrap.ToolInfo
}

// Server 负责暴露 REST 与 WebSocket 接口。
type Server struct {
	addr     string
	agents   AgentService
	runner   *agent.Runner
	recorder *transcript.Recorder
	metrics  *metrics.Collector
	log      *slog.Logger

	allowedOrigins []string
	originPattern  *regexp.Regexp
	upgrader       websocket.Upgrader
}

// Option 定义可选的 Server 配置。
type Option func(*Server) error

// WithRecorder 设置对话记录器。
func WithRecorder(recorder *transcript.Recorder) Option {
	return func(s *Server) error {
		s.recorder = recorder
		return nil
	}
}

// WithMetrics 替换默认的指标集合。
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Server) error {
		if collector != nil {
			s.metrics = collector
		}
		return nil
	}
}

// WithCORS 设置允许的前端来源，pattern 为空时只使用列表。
func WithCORS(origins []string, pattern string) Option {
	return func(s *Server) error {
		s.allowedOrigins = append([]string(nil), origins...)
		s.originPattern = nil
		if pattern == "" {
			return nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("解析跨域来源规则失败: %w", err)
		}
		s.originPattern = re
		return nil
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, agents AgentService, runner *agent.Runner, opts ...Option) (*Server, error) {
	if agents == nil {
		return nil, errors.New("未提供智能体服务")
	}
	if runner == nil {
		return nil, errors.New("未提供智能体运行器")
	}
	s := &Server{
		addr:    addr,
		agents:  agents,
		runner:  runner,
		metrics: metrics.Default(),
		log:     logger.Named("api"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	return s, nil
}

// Handler 返回带跨域与指标中间件的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc("GET "+prefix+"/health", s.handleHealth)
		mux.HandleFunc("GET "+prefix+"/wallet", s.handleWallet)
		mux.HandleFunc("GET "+prefix+"/tools", s.handleTools)
		mux.HandleFunc("POST "+prefix+"/chat", s.handleChat)
		mux.HandleFunc("GET "+prefix+"/history", s.handleHistory)
		mux.HandleFunc("GET "+prefix+"/ws/chat", s.handleChatSocket)
	}
	mux.Handle("GET /metrics", s.metrics.Handler())

	c := cors.New(cors.Options{
		AllowOriginFunc:  s.originAllowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.observe(mux))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	// 配置 HTTP 服务器。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API 服务启动", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return s.originPattern != nil && s.originPattern.MatchString(origin)
}

// observe 记录每个请求的状态码与耗时，路由名取匹配到的模式。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTPRequest(route, r.Method, recorder.status, time.Since(started))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
