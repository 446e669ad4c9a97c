package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/api"
	"github.com/motforex/merchant/app"
	"github.com/motforex/merchant/config"
	"github.com/motforex/merchant/provider"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)
	root := &cobra.Command{
		Use:     "merchantctl",
		Short:   "Operate merchant invoices",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zapcore.WarnLevel
			if verbose {
				level = zapcore.DebugLevel
			}
			config := zap.NewDevelopmentConfig()
			config.Level.SetLevel(level)
			l, err := config.Build()
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(l)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	load := func() (*config.Configuration, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		methodsCmd(load),
		showCmd(load),
		checkCmd(load),
		retryCmd(load),
		refreshTokensCmd(load),
		migrateCmd(load),
		signTokenCmd(load),
	)
	return root
}

type loader func() (*config.Configuration, error)

// withApp builds the service graph without registering metrics.
func withApp(load loader, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func invoiceID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid invoice id %q", arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func methodsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List configured merchant methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app.App) error {
				for _, m := range a.Registry.Methods() {
					rec, _ := a.Registry.Get(m)
					p := rec.Policy()
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s keyword=%s ttl=%s regenerations=%d\n", m, p.PaymentMethodKeyword, p.TTL, p.RegenerationCeiling)
				}
				return nil
			})
		},
	}
}

func showCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "show [invoice-id]",
		Short: "Print the stored invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoiceID(args[0])
			if err != nil {
				return err
			}
			return withApp(load, func(ctx context.Context, a *app.App) error {
				inv, err := a.Registry.GetInvoice(ctx, id)
				if err != nil {
					return err
				}
				var orders orderLister
				if j := a.Journal(); j != nil {
					orders = j
				}
				return showInvoice(ctx, cmd.OutOrStdout(), inv, orders)
			})
		},
	}
}

type orderLister interface {
	ListByInvoice(ctx context.Context, invoiceID int64) ([]*provider.ProviderOrder, error)
}

// showInvoice prints inv followed by the processor orders journaled for it.
func showInvoice(ctx context.Context, w io.Writer, inv *merchant.MerchantInvoice, orders orderLister) error {
	if err := printJSON(w, inv); err != nil {
		return err
	}
	if orders == nil {
		return nil
	}
	list, err := orders.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d provider order(s)\n", len(list))
	for _, o := range list {
		fmt.Fprintf(w, "%-40s %-10s %-12s %s\n", o.OrderNumber, o.PaymentSystemName, o.RawOrderStatus, o.ExtUpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func checkCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "check [invoice-id]",
		Short: "Ask the processor for the payment status and reconcile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoiceID(args[0])
			if err != nil {
				return err
			}
			return withApp(load, func(ctx context.Context, a *app.App) error {
				if err := a.Refresher.RefreshAll(ctx); err != nil {
					return err
				}
				inv, err := a.Registry.CheckInvoice(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), inv.Response())
			})
		},
	}
}

func retryCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-execution [invoice-id]",
		Short: "Notify the deposit service again for a paid invoice whose execution failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoiceID(args[0])
			if err != nil {
				return err
			}
			return withApp(load, func(ctx context.Context, a *app.App) error {
				inv, err := a.Registry.RetryExecution(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), inv.Response())
			})
		},
	}
}

func refreshTokensCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-tokens",
		Short: "Fetch fresh processor access tokens into the token store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app.App) error {
				if err := a.Refresher.RefreshAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "tokens refreshed")
				return nil
			})
		},
	}
}

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StorePostgres {
				return errors.Errorf("migrate needs the postgres store, got %q", cfg.Store.Driver)
			}
			cfg.Store.Migrate = true
			return withApp(func() (*config.Configuration, error) { return cfg, nil }, func(ctx context.Context, a *app.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	}
}

func signTokenCmd(load loader) *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sign-token",
		Short: "Issue a user token for manual API calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			now := time.Now()
			token, err := api.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).Sign(&api.Claims{
				Email: email,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   email,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("email")
	return cmd
}
