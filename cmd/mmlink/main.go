// Command mmlink opens chat conversation links: it classifies the
// identifier in a /{team}/{channels|messages}/{identifier} path, resolves
// it against the local cache and the server, and navigates to the
// canonical location.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/client/ui"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/config"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/identifier"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

type cli struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(Version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(version string) *cobra.Command {
	c := &cli{logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:           "mmlink",
		Short:         "Open chat conversation links",
		Long:          "mmlink resolves channel, direct message and group message links to the conversation they name.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(c.verbose, cmd.Name() == "interactive")
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate("mmlink version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.DefaultPath, "path to the config file")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		c.newClassifyCmd(),
		c.newResolveCmd(),
		c.newInteractiveCmd(version),
	)
	return cmd
}

// buildLogger logs JSON to stderr, or nowhere while the TUI owns the terminal
// unless --verbose asks for debug output
func buildLogger(verbose, interactive bool) (*zap.Logger, error) {
	if interactive && !verbose {
		return zap.NewNop(), nil
	}
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func (c *cli) newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <channels|messages> <identifier>",
		Short: "Show what an identifier names without contacting the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := identifier.ParseNamespace(args[0])
			if err != nil {
				return err
			}
			id := identifier.Classify(args[1], ns)
			fmt.Fprintf(cmd.OutOrStdout(), "kind=%s value=%s\n", id.Kind, id.Value)
			return nil
		},
	}
}

func (c *cli) newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path|url>",
		Short: "Resolve a conversation link and print where it leads",
		Example: `  mmlink resolve /myteam/channels/town-square
  mmlink resolve https://chat.example.com/myteam/messages/@johndoe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := identifier.ParsePath(args[0]); err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.resolve(cmd.Context(), args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func (c *cli) newInteractiveCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Jump between conversations in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer func() {
				// Background work ends with ctx; Close waits for it
				cancel()
				a.Close()
			}()

			events := a.startBackground(ctx)

			model := ui.NewModel(a.router, a.history, a.cache, a.state, version, c.logger).
				WithJumpTimeout(a.config.RequestTimeout())
			if events != nil {
				model = model.WithEvents(events)
			}

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("terminal UI: %w", err)
			}
			return nil
		},
	}
}

func (c *cli) open(ctx context.Context) (*app, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return openApp(ctx, cfg, c.logger)
}
