package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbroton/notcli/internal/audit"
	"github.com/mbroton/notcli/internal/config"
	"github.com/mbroton/notcli/internal/idempotency"
	"github.com/mbroton/notcli/internal/notion"
	"github.com/mbroton/notcli/internal/schemacache"
	"github.com/mbroton/notcli/internal/ui"
)

var (
	// Global flags
	configPath   string
	prettyOutput bool
	viewMode     string
	timeoutSecs  int

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

const (
	viewCompact = "compact"
	viewFull    = "full"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "notcli",
	Short: "notcli - structured page and block operations for agents",
	Long: `notcli performs structured read/write operations against a remote
document service: pages organized under typed data sources, each page an
ordered tree of content blocks.

Mutations are idempotent: an identical command accidentally issued twice
within a short window replays the first result instead of double-applying,
and structural block edits verify the page has not changed underneath them.
All output is a JSON envelope suitable for scripts and agents.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "version", "init", "completion", "help":
			return nil
		}
		if cmd.Parent() != nil && cmd.Parent().Name() == "completion" {
			return nil
		}

		var err error
		if strings.TrimSpace(configPath) != "" {
			cfg, err = config.LoadFrom(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return failCode(ErrAuthOrConfig, fmt.Errorf("failed to load config: %w", err), nil)
		}

		if viewMode != viewCompact && viewMode != viewFull {
			return fail(invalidInputf("unknown view %q (want compact or full)", viewMode))
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&prettyOutput, "pretty", false, "Indent JSON output")
	rootCmd.PersistentFlags().StringVar(&viewMode, "view", viewCompact, "Output view: compact or full")
	rootCmd.PersistentFlags().IntVar(&timeoutSecs, "timeout", 60, "Command timeout in seconds")
}

// app bundles the collaborators a command needs: the upstream client, the
// idempotency pipeline, the schema cache, and the audit log.
type app struct {
	cfg      *config.Config
	client   *notion.Client
	store    *idempotency.Store
	cache    *schemacache.Cache
	auditLog *audit.Logger
	pipeline *idempotency.Pipeline
}

// newApp wires up the command collaborators. Callers must Close.
func newApp() (*app, error) {
	token := cfg.ResolveToken()
	if token == "" {
		return nil, setupErrorf("no API token configured: set %s or token in %s", config.EnvToken, config.DefaultPath())
	}

	stateDir := cfg.ResolveStateDir()

	store, err := idempotency.OpenStore(stateDir)
	if err != nil {
		return nil, err
	}

	cache, err := schemacache.Load(stateDir, cfg.SchemaTTL())
	if err != nil {
		store.Close()
		return nil, err
	}

	transport := notion.NewTransport(notion.TransportOptions{
		BaseURL:     cfg.APIBaseURL,
		Token:       token,
		APIVersion:  cfg.APIVersion,
		MinInterval: cfg.RateLimitInterval(),
		MaxAttempts: cfg.MaxAttempts,
	})

	auditLog := audit.New(stateDir, cfg.Audit.Enabled)

	return &app{
		cfg:      cfg,
		client:   notion.NewClient(transport),
		store:    store,
		cache:    cache,
		auditLog: auditLog,
		pipeline: idempotency.NewPipeline(store, auditLog),
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// cmdContext returns the bounded context every command runs under.
func cmdContext() (context.Context, context.CancelFunc) {
	timeout := time.Duration(timeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// hintStderr prints a muted hint for interactive users without touching
// the JSON envelope on stdout.
func hintStderr(msg string) {
	if ui.IsTerminal() {
		fmt.Fprintln(rootCmd.ErrOrStderr(), ui.Hint(msg))
	}
}
