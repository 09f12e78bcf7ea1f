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
	"golang.org/x/sync/semaphore"

	"github.com/victornm/quizd/internal/dispatch"
	"github.com/victornm/quizd/internal/event"
	"github.com/victornm/quizd/internal/leaderboard"
	"github.com/victornm/quizd/internal/notify"
	"github.com/victornm/quizd/internal/session"
	"github.com/victornm/quizd/internal/store"
	"github.com/victornm/quizd/internal/telemetry"
)

const defaultMaxSessions = 1024

type Config struct {
	TCP struct {
		Port int32

		// MaxSessions caps concurrent client connections. Zero means the
		// default cap; the listener backlog absorbs the overflow.
		MaxSessions int64
	}

	Admin struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Quiz struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		store       *store.Store
		leaderboard *leaderboard.Service
		notifier    *notify.Notifier
		dispatcher  *dispatch.Dispatcher
	}

	lis   net.Listener
	admin *http.Server
	sem   *semaphore.Weighted

	// sessionCtx cancels live sessions on shutdown; done is closed when the
	// accept loop has drained them.
	sessionCtx    context.Context
	cancelSession context.CancelFunc
	done          chan struct{}
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c, done: make(chan struct{})}

	if s.c.TCP.MaxSessions <= 0 {
		s.c.TCP.MaxSessions = defaultMaxSessions
	}
	s.sem = semaphore.NewWeighted(s.c.TCP.MaxSessions)
	s.sessionCtx, s.cancelSession = context.WithCancel(context.Background())

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAdmin()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg := s.c.Postgres.Quiz

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pg.User, pg.Pass, pg.Addr, pg.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	s.service.store = store.New(store.Config{
		DB: s.infra.postgres,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Gateway:  s.service.store,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	s.service.notifier = notify.New(notify.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.pubsub,
		Prefix:   s.c.Redis.Pubsub.Prefix,
	})

	s.service.dispatcher = dispatch.New(dispatch.Config{
		Gateway:   s.service.store,
		EventBus:  s.eb,
		Standings: s.service.leaderboard,
	})
}

func (s *Server) initAdmin() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.admin = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.Admin.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	if err := s.service.store.Migrate(ctx); err != nil {
		slog.ErrorContext(ctx, "server: migrate schema failed", "error", err)
		panic(err)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.TCP.Port))
	if err != nil {
		slog.ErrorContext(ctx, "server: listen failed", "error", err)
		panic(err)
	}
	s.lis = lis

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: quiz protocol listening on port %d", s.c.TCP.Port))
		return s.acceptLoop()
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: admin HTTP listening on port %d", s.c.Admin.Port))
		if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// acceptLoop admits at most MaxSessions concurrent sessions: a semaphore
// slot is taken before each accept and held for the session's lifetime.
func (s *Server) acceptLoop() error {
	defer close(s.done)

	for {
		if err := s.sem.Acquire(s.sessionCtx, 1); err != nil {
			// Shutdown: the remaining weight is reclaimed below.
			break
		}

		conn, err := s.lis.Accept()
		if err != nil {
			s.sem.Release(1)
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.ErrorContext(s.sessionCtx, "server: accept failed", "error", err)
			continue
		}

		go func() {
			defer s.sem.Release(1)
			session.NewHandler(conn, s.service.dispatcher).Serve(s.sessionCtx)
		}()
	}

	// Draining: every live session holds one semaphore unit.
	drain := context.Background()
	if err := s.sem.Acquire(drain, s.c.TCP.MaxSessions); err != nil {
		return err
	}
	s.sem.Release(s.c.TCP.MaxSessions)
	return nil
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.lis != nil {
		s.lis.Close()
	}
	s.cancelSession()
	<-s.done

	if err := s.admin.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown admin HTTP failed", "error", err)
	}

	s.eb.Stop()
	s.infra.postgres.Close()

	slog.InfoContext(ctx, "server: shutdown completed")
}
