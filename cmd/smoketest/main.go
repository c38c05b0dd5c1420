package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/agentdesk/internal/smoke"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// errFailed makes the process exit 1 without printing a second message.
var errFailed = errors.New("smoke checks failed")

type options struct {
	baseURL  string
	email    string
	password string
	timeout  time.Duration
	failFast bool
	verbose  bool
	noColor  bool
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "smoketest",
		Short:         "End-to-end checks against a running agentdesk API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", envOr("SMOKE_BASE_URL", "http://localhost:8080"), "API base URL")
	flags.StringVar(&opts.email, "email", envOr("SMOKE_EMAIL", os.Getenv("SEED_ADMIN_EMAIL")), "login email")
	flags.StringVar(&opts.password, "password", envOr("SMOKE_PASSWORD", os.Getenv("SEED_ADMIN_PASSWORD")), "login password")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	flags.BoolVar(&opts.failFast, "fail-fast", false, "stop at the first failing scenario")
	flags.BoolVar(&opts.verbose, "verbose", false, "log scenario progress")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newRunCmd(opts), newListCmd(opts), newBANTLocalCmd(opts))
	return root
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run scenarios (all by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := smoke.Select(args)
			if err != nil {
				return err
			}
			env := &smoke.Env{
				Client:   smoke.NewClient(opts.baseURL, opts.timeout),
				Email:    opts.email,
				Password: opts.password,
				Logger:   opts.logger(),
			}
			runner := smoke.NewRunner(env, cmd.OutOrStdout(),
				smoke.WithFailFast(opts.failFast),
				smoke.WithStyles(smoke.NewStyles(opts.noColor)),
			)
			if sum := runner.Run(cmd.Context(), scenarios); !sum.OK() {
				return errFailed
			}
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in scenarios",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			styles := smoke.NewStyles(opts.noColor)
			for _, sc := range smoke.Scenarios() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", styles.Title.Render(sc.Name), styles.Muted.Render(sc.Description))
			}
		},
	}
}

func newBANTLocalCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bant-local",
		Short: "Run the BANT detector cases offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := smoke.CheckBANTLocal(cmd.Context(), opts.logger())
			if failed := smoke.PrintBANTLocal(cmd.OutOrStdout(), smoke.NewStyles(opts.noColor), results); failed > 0 {
				return errFailed
			}
			return nil
		},
	}
}

func (o *options) logger() *logging.Logger {
	if o.verbose {
		return logging.New("debug")
	}
	return logging.Discard()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
