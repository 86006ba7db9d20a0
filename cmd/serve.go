package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resumebot/internal/logger"
	"github.com/spigell/resumebot/server"
)

const defaultListenAddr = ":8080"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resumebot chat endpoint over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address (default :8080)")

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

// redisHealth adapts the Redis client to the server's health check surface.
type redisHealth struct {
	client *redis.Client
}

func (r redisHealth) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func serve() {
	ctx := context.Background()

	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}

	zlog.Info("starting resumebot", zap.String("version", version))

	service, redisClient, err := buildPipeline(ctx, config, zlog)
	if err != nil {
		zlog.Fatal("building the answer pipeline", zap.Error(err))
	}
	defer redisClient.Close()

	srv := server.New(service, redisHealth{client: redisClient}, zlog)

	addr := config.Listen
	if viper.GetString("listen") != "" {
		addr = viper.GetString("listen")
	}
	if addr == "" {
		addr = defaultListenAddr
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-stop
		zlog.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			zlog.Warn("shutdown failed", zap.Error(err))
		}
	}()

	zlog.Info("listening", zap.String("addr", addr))

	if err := srv.Listen(addr); err != nil {
		zlog.Fatal("serving http", zap.Error(err))
	}
}
