package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/agentuity/go-storefront/app"
	"github.com/agentuity/go-storefront/config"
	"github.com/agentuity/go-storefront/env"
	"github.com/agentuity/go-storefront/eventing"
	"github.com/agentuity/go-storefront/logger"
	"github.com/agentuity/go-storefront/persist"
	"github.com/agentuity/go-storefront/session"
	cstr "github.com/agentuity/go-storefront/string"
	"github.com/agentuity/go-storefront/sys"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront session core",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to the YAML config file (env STOREFRONT_CONFIG)")
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error (env STOREFRONT_LOG_LEVEL)")
	root.AddCommand(runCmd(), loginCmd(), logoutCmd(), statusCmd())
	return root
}

// backends holds what every subcommand opens from the configuration.
type backends struct {
	cfg     config.Config
	log     logger.Logger
	rdb     *redis.Client
	storage persist.Storage
}

func open(ctx context.Context, cmd *cobra.Command) (*backends, error) {
	log := env.NewLogger(cmd)
	cfg, err := config.Load(env.FlagOrEnv(cmd, "config", "STOREFRONT_CONFIG", ""))
	if err != nil {
		return nil, err
	}
	rdb, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storage, err := app.OpenStorage(ctx, cfg, rdb)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}
	return &backends{cfg: cfg, log: log, rdb: rdb, storage: storage}, nil
}

func (b *backends) close(ctx context.Context) {
	if err := b.storage.Close(ctx); err != nil {
		b.log.Warn("error closing storage: %s", err)
	}
	if b.rdb != nil {
		b.rdb.Close()
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Restore the session and hold the realtime connection until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := sys.ShutdownContext(cmd.Context())
			defer stop()
			b, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			events, err := app.OpenEvents(ctx, b.cfg, b.log, b.rdb)
			if err != nil {
				b.close(ctx)
				return err
			}
			a, err := app.New(app.Options{
				Context: ctx,
				Config:  b.cfg,
				Logger:  b.log,
				Storage: b.storage,
				Events:  events,
			})
			if err != nil {
				events.Close()
				b.close(ctx)
				return err
			}
			// the app owns storage and events from here on
			defer func() {
				if b.rdb != nil {
					b.rdb.Close()
				}
			}()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				sub, err := a.Events().Subscribe(gctx, app.ConnectionSubject, func(_ context.Context, msg eventing.Message) {
					var payload map[string]string
					if err := json.Unmarshal(msg.Data(), &payload); err == nil {
						b.log.Info("realtime is %s", payload["state"])
					}
				})
				if err != nil {
					return err
				}
				<-gctx.Done()
				return sub.Close()
			})
			g.Go(func() error {
				if err := a.Start(gctx); err != nil {
					return err
				}
				endpoint, _ := cstr.MaskURL(b.cfg.Realtime.Endpoint)
				b.log.Info("running against %s", endpoint)
				<-gctx.Done()
				return nil
			})
			runErr := g.Wait()

			stopCtx, cancel := context.WithTimeout(context.Background(), b.cfg.ShutdownTimeout.Std())
			defer cancel()
			if err := a.Stop(stopCtx); err != nil {
				b.log.Error("error stopping: %s", err)
			}
			if errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		},
	}
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Persist credentials for the next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			b, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.close(ctx)

			id, _ := cmd.Flags().GetString("user-id")
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			var user *session.User
			if id != "" || email != "" || name != "" {
				user = &session.User{ID: id, Email: email, Name: name}
			}
			if err := persist.Save(ctx, b.storage, &token, user); err != nil {
				return err
			}
			b.log.Info("saved session %s", cstr.Fingerprint(token))
			return nil
		},
	}
	cmd.Flags().String("token", "", "auth token")
	cmd.Flags().String("user-id", "", "user id")
	cmd.Flags().String("email", "", "user email")
	cmd.Flags().String("name", "", "user display name")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			b, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.close(ctx)
			if err := persist.Clear(ctx, b.storage); err != nil {
				return err
			}
			b.log.Info("session cleared")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			b, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.close(ctx)
			token, user, err := persist.Load(ctx, b.storage)
			if err != nil && !errors.Is(err, persist.ErrCorruptUser) {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "authenticated: %v\n", token != nil)
			fmt.Fprintf(out, "token:         %s\n", cstr.MaskToken(token))
			if user != nil {
				fmt.Fprintf(out, "user:          %s %s <%s>\n", user.ID, user.Name, cstr.MaskEmail(user.Email))
			} else if err != nil {
				fmt.Fprintf(out, "user:          unreadable (%s)\n", err)
			}
			return nil
		},
	}
}
