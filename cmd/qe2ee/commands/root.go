package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"qe2ee/internal/app"
)

// annotation marking commands that need no account.
const noAccount = "qe2ee/no-account"

var (
	cfg         app.Config
	appCtx      *app.Wire
	dumpMetrics bool
)

func Execute() error {
	root := &cobra.Command{
		Use:          "qe2ee",
		Short:        "End-to-end encryption core for chat clients",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
				return err
			}
			if err := cfg.Defaults(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if cmd.Annotations[noAccount] != "" {
				w, err := app.NewWire(ctx, cfg)
				if err != nil {
					return err
				}
				appCtx = w
				return nil
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			create := cmd.Name() == "init"
			if create {
				if err := app.CheckPassphrase(cfg.Passphrase); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return err
			}
			w, err := app.NewWire(ctx, cfg)
			if err != nil {
				return err
			}
			appCtx = w
			return w.OpenAccount(ctx, create)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeApp(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.Home, "home", "", "config dir for the file store (default ~/.qe2ee)")
	f.StringVarP(&cfg.Passphrase, "passphrase", "p", "", "passphrase protecting pickled state")
	f.StringVar(&cfg.UserID, "user", "", "user id, e.g. @alice:example.org")
	f.StringVar(&cfg.DeviceID, "device", "", "device id")
	f.StringVar(&cfg.Store, "store", "", "store backend: file, redis or postgres")
	f.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address (host:port)")
	f.StringVar(&cfg.RedisPassword, "redis-password", "", "redis password")
	f.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number")
	f.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "postgres connection string")
	f.StringVar(&cfg.LogLevel, "log-level", "", "log level (default warn)")
	f.BoolVar(&cfg.LogJSON, "log-json", false, "log as JSON")
	f.IntVar(&cfg.ProtocolVersion, "protocol-version", 0, "published key format: 0 legacy, 1 with user and device ids")
	f.BoolVar(&dumpMetrics, "metrics", false, "print operation metrics to stderr on exit")

	root.AddCommand(
		initCmd(),
		identityCmd(),
		keysCmd(),
		verifyCmd(),
		fileCmd(),
		importKeysCmd(),
		sessionCmd(),
	)
	err := root.ExecuteContext(context.Background())
	if err != nil && appCtx != nil {
		_ = closeApp(context.Background(), os.Stderr)
	}
	return err
}

func closeApp(ctx context.Context, stderr io.Writer) error {
	if appCtx == nil {
		return nil
	}
	w := appCtx
	appCtx = nil
	if dumpMetrics {
		if err := w.Metrics.WriteText(stderr); err != nil {
			fmt.Fprintln(stderr, "metrics:", err)
		}
	}
	return w.Close(ctx)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
