package cli

import (
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"kite-webtrader/internal/broker"
	"kite-webtrader/internal/session"
	"kite-webtrader/internal/store"
	"kite-webtrader/internal/tasks"
)

func newWorkerCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the trade execution worker",
		Long: `Run the asynchronous trade execution worker.

The worker consumes dispatched orders from the trades queue, places them
with the broker using the stored session token, and records the terminal
status on the persisted order.`,
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

			executor := tasks.NewExecutor(orders, tokens, factory, app.Logger)
			srv, mux := tasks.NewServer(asynq.RedisClientOpt{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}, cfg.Worker.Concurrency, executor)

			app.Logger.Info().
				Int("concurrency", cfg.Worker.Concurrency).
				Str("queue", tasks.QueueTrades).
				Msg("worker starting")

			// Run blocks until SIGINT/SIGTERM.
			return srv.Run(mux)
		},
	}
}
