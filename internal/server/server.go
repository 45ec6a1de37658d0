package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/chatquiz/internal/api"
	"github.com/victornm/chatquiz/internal/event"
	"github.com/victornm/chatquiz/internal/leaderboard"
	"github.com/victornm/chatquiz/internal/question"
	"github.com/victornm/chatquiz/internal/question/gemini"
	"github.com/victornm/chatquiz/internal/question/openai"
	"github.com/victornm/chatquiz/internal/score"
	"github.com/victornm/chatquiz/internal/session"
	"github.com/victornm/chatquiz/internal/storage"
	"github.com/victornm/chatquiz/internal/storage/postgreskv"
	"github.com/victornm/chatquiz/internal/storage/rediskv"
	"github.com/victornm/chatquiz/internal/storage/sqlitekv"
	"github.com/victornm/chatquiz/internal/telemetry"
)

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type ModelConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Config struct {
	Log struct {
		Level string
	}

	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		Driver string
		Redis  RedisConfig

		Postgres struct {
			Addr string
			User string
			Pass string
			Name string
		}

		SQLite struct {
			Path string
		}
	}

	Redis struct {
		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}

	Question struct {
		Provider string
		Gemini   ModelConfig
		OpenAI   ModelConfig

		Static struct {
			Path string
		}

		Retry struct {
			MaxRetries      int
			InitialInterval time.Duration
		}
	}

	Quiz struct {
		DefaultCount     int
		MaxCount         int
		MaxSubjectLength int
	}
}

// DefaultConfig returns the values used when neither the file nor the environment sets them.
func DefaultConfig() Config {
	var c Config

	c.Log.Level = "info"
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090

	c.Store.Driver = DriverSQLite
	c.Store.SQLite.Path = "chatquiz.db"
	c.Store.Redis.Prefix = "chatquiz"

	c.Redis.Leaderboard.Addrs = []string{"localhost:6379"}
	c.Redis.Leaderboard.Prefix = "chatquiz"
	c.Redis.Pubsub.Addrs = []string{"localhost:6379"}
	c.Redis.Pubsub.Prefix = "chatquiz"

	c.Question.Provider = ProviderGemini
	c.Question.Gemini.BaseURL = gemini.DefaultBaseURL
	c.Question.Gemini.Model = gemini.DefaultModel
	c.Question.Gemini.Timeout = gemini.DefaultTimeout
	c.Question.OpenAI.BaseURL = openai.DefaultBaseURL
	c.Question.OpenAI.Model = openai.DefaultModel
	c.Question.OpenAI.Timeout = openai.DefaultTimeout
	c.Question.Retry.MaxRetries = question.DefaultRetryPolicy.MaxRetries
	c.Question.Retry.InitialInterval = question.DefaultRetryPolicy.InitialInterval

	c.Quiz.DefaultCount = 5
	c.Quiz.MaxCount = question.MaxCount
	c.Quiz.MaxSubjectLength = 100

	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			store       redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
		kv       storage.KV
		source   question.Source
	}

	service struct {
		session     *session.Service
		score       *score.Service
		leaderboard *leaderboard.Service
	}

	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if err := s.initSource(); err != nil {
		return fmt.Errorf("question source: %w", err)
	}

	return nil
}

func connectRedis(name string, c RedisConfig) (redis.UniversalClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Password: c.Pass,
	})

	if err := telemetry.MonitorRedis(r, name); err != nil {
		return nil, err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Server) initRedis() error {
	var err error
	s.infra.redis.leaderboard, err = connectRedis("leaderboard", s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connectRedis("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	switch s.c.Store.Driver {
	case DriverRedis:
		r, err := connectRedis("store", s.c.Store.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		s.infra.redis.store = r
		s.infra.kv = rediskv.New(rediskv.Config{
			Redis:  r,
			Prefix: s.c.Store.Redis.Prefix,
		})

	case DriverPostgres:
		db, err := s.connectPostgres()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.postgres = db

		kv := postgreskv.New(postgreskv.Config{DB: db})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := kv.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.kv = kv

	case DriverSQLite:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		kv, err := sqlitekv.Open(ctx, s.c.Store.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		s.infra.kv = kv

	default:
		return fmt.Errorf("unknown driver %q", s.c.Store.Driver)
	}

	slog.Info("server: session store ready", "driver", s.c.Store.Driver)
	return nil
}

func (s *Server) connectPostgres() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pc := s.c.Store.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initSource() error {
	qc := s.c.Question
	retry := question.RetryPolicy{
		MaxRetries:      qc.Retry.MaxRetries,
		InitialInterval: qc.Retry.InitialInterval,
	}

	switch qc.Provider {
	case ProviderGemini:
		s.infra.source = gemini.New(gemini.Config{
			APIKey:  qc.Gemini.APIKey,
			BaseURL: qc.Gemini.BaseURL,
			Model:   qc.Gemini.Model,
			Timeout: qc.Gemini.Timeout,
			Retry:   retry,
		})

	case ProviderOpenAI:
		s.infra.source = openai.New(openai.Config{
			APIKey:  qc.OpenAI.APIKey,
			BaseURL: qc.OpenAI.BaseURL,
			Model:   qc.OpenAI.Model,
			Timeout: qc.OpenAI.Timeout,
			Retry:   retry,
		})

	case ProviderStatic:
		src, err := question.LoadStatic(qc.Static.Path)
		if err != nil {
			return err
		}
		s.infra.source = src

	default:
		return fmt.Errorf("unknown provider %q", qc.Provider)
	}

	return nil
}

func (s *Server) initService() {
	s.service.session = session.NewService(session.Config{
		Store: session.NewStore(session.StoreConfig{
			KV:       s.infra.kv,
			EventBus: s.eb,
		}),
		Source:           s.infra.source,
		DefaultCount:     s.c.Quiz.DefaultCount,
		MaxCount:         s.c.Quiz.MaxCount,
		MaxSubjectLength: s.c.Quiz.MaxSubjectLength,
	})

	s.service.score = score.NewService(score.Config{
		Sessions: s.service.session,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Sessions: s.service.session,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Score:        s.service.score,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptors(slog.Default())...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}
	s.grpc.GracefulStop()

	s.eb.Stop()

	if err := s.closeInfra(); err != nil {
		slog.ErrorContext(ctx, "server: close infra failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}

func (s *Server) closeInfra() error {
	var errs []error
	if s.infra.kv != nil {
		errs = append(errs, s.infra.kv.Close())
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	for _, r := range []redis.UniversalClient{
		s.infra.redis.store,
		s.infra.redis.leaderboard,
		s.infra.redis.pubsub,
	} {
		if r != nil {
			errs = append(errs, r.Close())
		}
	}

	return errors.Join(errs...)
}
