package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"kite-webtrader/internal/broker"
	"kite-webtrader/internal/quotes"
	"kite-webtrader/internal/session"
	"kite-webtrader/internal/store"
	"kite-webtrader/internal/tasks"
	"kite-webtrader/internal/web"
)

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config

			orders, err := store.NewSQLiteStore(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer orders.Close()

			tokens := session.NewStore(cfg.Storage.TokenPath)
			factory := broker.KiteFactory{
				APIKey:    cfg.Credentials.Kite.APIKey,
				APISecret: cfg.Credentials.Kite.APISecret,
			}

			redisOpt := asynq.RedisClientOpt{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}
			dispatcher := tasks.NewDispatcher(redisOpt)
			defer dispatcher.Close()

			inspector := asynq.NewInspector(redisOpt)
			defer inspector.Close()
			statusSvc := tasks.NewStatusService(inspector, orders)

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			quoteSvc := quotes.NewCachedService(rdb, app.Logger)

			handler := web.NewHandler(web.HandlerDeps{
				Tokens:     tokens,
				Factory:    factory,
				Orders:     orders,
				Dispatcher: dispatcher,
				Status:     statusSvc,
				Quotes:     quoteSvc,
				Logger:     app.Logger,
			})
			router := web.NewRouter(handler, app.Logger)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-stop
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()

			app.Logger.Info().Str("addr", cfg.Server.Addr).Msg("server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}
