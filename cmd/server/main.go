package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"teetime-api/internal/config"
	"teetime-api/internal/events"
	"teetime-api/internal/gateway"
	"teetime-api/internal/handler"
	"teetime-api/internal/logging"
	"teetime-api/internal/middleware"
	"teetime-api/internal/plan"
	"teetime-api/internal/rpc"
	"teetime-api/internal/store"
	"teetime-api/internal/store/memstore"
)

var (
	_ handler.Store = (*store.Store)(nil)
	_ handler.Store = (*memstore.Store)(nil)
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	plans := plan.DefaultCatalog()
	if cfg.PlansFile != "" {
		if plans, err = plan.LoadCatalog(cfg.PlansFile); err != nil {
			return err
		}
		log.Info("plan catalog loaded", zap.String("file", cfg.PlansFile))
	}

	var pub events.Publisher = events.Nop
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		pub = p
		log.Info("publishing events", zap.String("exchange", cfg.AMQPExchange))
	}
	defer pub.Close()

	h := handler.New(st, cfg.JWTSecret,
		handler.WithPlans(plans),
		handler.WithPublisher(pub),
		handler.WithLogger(log),
		handler.WithTokenTTL(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		handler.WithAutoPromote(cfg.WaitlistAutoPromote),
	)

	// grpc server
	rl := middleware.NewRateLimiter(cfg.AuthRateRPS, cfg.AuthRateBurst)
	defer rl.Stop()
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(
			middleware.Logging(log),
			middleware.RateLimit(rl),
			middleware.Auth(cfg.JWTSecret),
		),
	)
	rpc.RegisterGolfServiceServer(srv, h)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	go func() {
		log.Info("grpc listening", zap.String("port", cfg.GRPCPort))
		if err := srv.Serve(lis); err != nil {
			log.Error("grpc", zap.Error(err))
		}
	}()

	// http gateway -> forwards browser requests to grpc on localhost
	gw, err := gateway.Dial("localhost:"+cfg.GRPCPort, log)
	if err != nil {
		return err
	}
	defer gw.Close()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.WebPort,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("gateway listening", zap.String("port", cfg.WebPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http", zap.Error(err))
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.GracefulStop()
	return nil
}

func openStore(ctx context.Context, cfg config.App, log *zap.Logger) (handler.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store; data is lost on exit")
		return memstore.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(pool)
	if err := st.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("connected to postgres")

	if err := st.Migrate(ctx, cfg.MigrationsPath); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("migration applied", zap.String("path", cfg.MigrationsPath))
	return st, pool.Close, nil
}
