package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"Bt1QMedia/config"
	"Bt1QMedia/core/auth"
	"Bt1QMedia/core/catalog"
	"Bt1QMedia/core/events"
	"Bt1QMedia/core/favorite"
	"Bt1QMedia/core/playlist"
	"Bt1QMedia/logger"
	"Bt1QMedia/repository"
	"Bt1QMedia/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// Pinger is anything /health can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from. Cache and Hub are optional.
type Deps struct {
	Store   repository.Store
	Objects storage.ObjectStore
	Cache   interface {
		catalog.Cache
		Pinger
	}
	Hub *events.Hub
}

// Server is the HTTP API.
type Server struct {
	cfg       *config.Config
	auth      *auth.Service
	catalog   *catalog.Service
	playlists *playlist.Service
	favorites *favorite.Service
	limiter   *auth.RateLimiter
	hub       *events.Hub
	store     Pinger
	cache     Pinger
	handler   http.Handler
}

// New wires the services over deps and builds the router.
func New(cfg *config.Config, deps Deps) *Server {
	opts := []catalog.Option{
		catalog.WithUploadPolicy(catalog.UploadPolicy{
			MaxBytes:    cfg.MaxContentLength,
			AllowedExts: cfg.UploadAllowedExts,
		}),
	}
	s := &Server{
		cfg:     cfg,
		auth:    auth.NewService(deps.Store, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)),
		limiter: auth.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst),
		hub:     deps.Hub,
		store:   deps.Store,
	}
	if deps.Cache != nil {
		opts = append(opts, catalog.WithCache(deps.Cache))
		s.cache = deps.Cache
	}
	if deps.Hub != nil {
		opts = append(opts, catalog.WithEvents(deps.Hub))
	}
	s.catalog = catalog.NewService(deps.Store, deps.Objects, opts...)
	s.playlists = playlist.NewService(deps.Store, deps.Store, s.catalog)
	s.favorites = favorite.NewService(deps.Store)
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// 长连接和音频流不受请求超时限制
	router.HandleFunc("/ws/catalog", s.catalogEventsHandler).Methods(http.MethodGet)
	router.HandleFunc("/stream/{type}/{id:[0-9]+}", s.streamHandler).Methods(http.MethodGet, http.MethodHead)

	api := router.NewRoute().Subrouter()
	if s.cfg.RequestTimeout > 0 {
		api.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	// 用户认证相关的API端点
	api.HandleFunc("/register", s.rateLimited(s.registerHandler)).Methods(http.MethodPost)
	api.HandleFunc("/login", s.rateLimited(s.loginHandler)).Methods(http.MethodPost)

	// 曲库
	api.HandleFunc("/tracks", s.listTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/podcasts", s.listPodcastsHandler).Methods(http.MethodGet)
	api.HandleFunc("/search", s.searchHandler).Methods(http.MethodGet)

	// 播放列表和播放记录
	api.HandleFunc("/playlists", s.requireUser(s.listPlaylistsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/playlists", s.requireUser(s.createPlaylistHandler)).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id:[0-9]+}/tracks", s.requireUser(s.listPlaylistItemsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{id:[0-9]+}/tracks", s.requireUser(s.addPlaylistItemHandler)).Methods(http.MethodPost)
	api.HandleFunc("/recently-played", s.requireUser(s.listRecentlyPlayedHandler)).Methods(http.MethodGet)
	api.HandleFunc("/recently-played", s.requireUser(s.recordPlayedHandler)).Methods(http.MethodPost)

	// 收藏
	api.HandleFunc("/favorites/{userId:[0-9]+}", s.requireUser(s.listFavoritesHandler)).Methods(http.MethodGet)
	api.HandleFunc("/favorites/{userId:[0-9]+}", s.requireUser(s.toggleFavoriteHandler)).Methods(http.MethodPost)

	// 管理员
	api.HandleFunc("/admin/upload", s.requireAdmin(s.uploadHandler)).Methods(http.MethodPost)
	api.HandleFunc("/admin/tracks", s.requireAdmin(s.addContentHandler)).Methods(http.MethodPost)
	api.HandleFunc("/admin/content/{type}/{id:[0-9]+}", s.requireAdmin(s.deleteContentHandler)).Methods(http.MethodDelete)

	api.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)

	// CORS sits outside the router so preflight requests never hit the method matcher.
	chain := chi.Chain(middleware.RequestID)
	if s.cfg.TrustProxyHeaders {
		chain = append(chain, middleware.RealIP)
	}
	chain = append(chain, accessLog, middleware.Recoverer, corsMiddleware)
	return chain.Handler(router)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// 设置服务器超时
	httpServer := &http.Server{
		Addr:         s.cfg.ServerAddr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", logger.String("addr", s.cfg.ServerAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")

		// 创建一个5秒超时的上下文
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}
