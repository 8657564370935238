package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/de-tools/market-atlas/pkg/runtime/app"
	"github.com/de-tools/market-atlas/pkg/runtime/terminal/export"
	"github.com/de-tools/market-atlas/pkg/services/config"
	"github.com/de-tools/market-atlas/pkg/terminal/commands"
)

// CLI represents the command-line interface
type CLI struct {
	configPath string
	reporter   *export.Reporter
	rootCmd    *cobra.Command
	load       func(path string) (*config.App, error)

	mu  sync.Mutex
	app *app.App
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
	// LoadConfig overrides how the configuration file is read.
	LoadConfig func(path string) (*config.App, error)
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}

	cli := &CLI{
		reporter: export.NewReporter(opts.Output),
		load:     opts.LoadConfig,
	}

	cli.rootCmd = cli.newRootCmd()
	cli.rootCmd.SetOut(opts.Output)
	return cli
}

func (cli *CLI) Execute() error {
	defer cli.Close()
	return cli.rootCmd.Execute()
}

func (cli *CLI) ExecuteContext(ctx context.Context, args ...string) error {
	defer cli.Close()
	cli.rootCmd.SetArgs(args)
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) Close() error {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	if cli.app == nil {
		return nil
	}
	err := cli.app.Close()
	cli.app = nil
	return err
}

// App builds the services on first use so commands that need none stay cheap.
func (cli *CLI) App(ctx context.Context) (*app.App, error) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	if cli.app != nil {
		return cli.app, nil
	}

	cfg, err := cli.load(cli.configPath)
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise: %w", err)
	}
	cli.app = a
	return a, nil
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "market-atlas",
		Short:         "Marketing KPI reports for a brand and its competitors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "", "Path to the YAML configuration file")

	cmd.AddCommand(commands.NewSubmitCmd(cli.App, cli.reporter))
	cmd.AddCommand(commands.NewStartCmd(cli.App, cli.reporter))
	cmd.AddCommand(commands.NewStatusCmd(cli.App, cli.reporter))
	cmd.AddCommand(commands.NewTableCmd(cli.App, cli.reporter))
	cmd.AddCommand(commands.NewCollectCmd(cli.App, cli.reporter))
	cmd.AddCommand(commands.NewKPIsCmd(cli.reporter))

	return cmd
}
