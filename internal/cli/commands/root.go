// Package commands implements the onpage command line tool
package commands

import (
	"context"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/conduit-lang/onpage/internal/cli/config"
	"github.com/conduit-lang/onpage/internal/cli/ui"
	"github.com/conduit-lang/onpage/pkg/onpage"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	configPath string
	endpoint   string
	token      string
	timeout    time.Duration
	verbose    bool
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "onpage",
		Short: "Browse and update an On Page catalog",
		Long: color.CyanString(`onpage - On Page catalog client

Reads the catalog schema, queries records with their relations and posts
data, including file uploads, to the API.

Connection settings come from onpage.yml (see "onpage init"), ONPAGE_*
environment variables and the --endpoint and --token flags, in increasing
order of precedence.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: nearest onpage.yml)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "API endpoint or company name")
	flags.StringVar(&opts.token, "token", "", "API access token")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Request timeout (default 60s)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log every request")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewInitCommand(opts))
	rootCmd.AddCommand(NewSchemaCommand(opts))
	rootCmd.AddCommand(NewQueryCommand(opts))
	rootCmd.AddCommand(NewPostCommand(opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the onpage version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("onpage version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// loadConfig merges the config file, the environment and the flags
func (o *rootOptions) loadConfig() (*onpage.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	config.Override(cfg, o.endpoint, o.token, o.timeout)
	return cfg, nil
}

func (o *rootOptions) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// connect builds a client, which loads the catalog schema
func (o *rootOptions) connect(cmd *cobra.Command) (*onpage.Client, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger()
	var client *onpage.Client
	err = ui.WithSpinner(cmd.ErrOrStderr(), "Loading schema", isTerminal(cmd.ErrOrStderr()), o.noColor, func() error {
		client, err = onpage.New(commandContext(cmd), *cfg, onpage.WithLogger(logger))
		return err
	})
	return client, err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// ExecuteContext runs the root command, cancelling requests when ctx ends
func ExecuteContext(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		noColor, _ := rootCmd.PersistentFlags().GetBool("no-color")
		rootCmd.PrintErr(ui.Describe(err, noColor || color.NoColor))
		return err
	}
	return nil
}
