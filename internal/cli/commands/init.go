package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/conduit-lang/onpage/internal/cli/config"
	"github.com/conduit-lang/onpage/internal/cli/ui"
	"github.com/conduit-lang/onpage/pkg/onpage"
	"github.com/spf13/cobra"
)

// ErrConfigExists is returned when init would overwrite a config file
var ErrConfigExists = errors.New("config file already exists")

type initOptions struct {
	*rootOptions
	force      bool
	skipVerify bool
}

// NewInitCommand creates the init command
func NewInitCommand(root *rootOptions) *cobra.Command {
	opts := &initOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an onpage.yml config file",
		Long: `Create an onpage.yml file with the connection settings of a catalog.

Values missing from the flags and environment are asked interactively.
The settings are checked by loading the catalog schema before saving.

Examples:
  onpage init
  onpage init --endpoint acme --token 0123abcd
  onpage init --config ~/catalogs/acme.yml --skip-verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&opts.skipVerify, "skip-verify", false, "Save without contacting the API")

	return cmd
}

func runInit(cmd *cobra.Command, opts *initOptions) error {
	path := opts.configPath
	if path == "" {
		path = config.FileName
	}

	interactive := opts.endpoint == "" || opts.token == ""

	if _, err := os.Stat(path); err == nil && !opts.force {
		if !interactive {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
		}
		overwrite := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("%s already exists. Overwrite?", path),
		}
		if err := survey.AskOne(prompt, &overwrite); err != nil {
			return err
		}
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	cfg := onpage.Config{
		Endpoint: opts.endpoint,
		Token:    opts.token,
		Timeout:  opts.timeout,
	}
	if interactive {
		if err := askConnection(&cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if !opts.skipVerify {
		client, err := onpage.New(commandContext(cmd), cfg, onpage.WithLogger(opts.logger()))
		if err != nil {
			return err
		}
		ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Connected to %s (%d resources)",
			client.Schema().Label, len(client.Schema().Resources())), opts.noColor)
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}
	ui.WriteSuccess(cmd.OutOrStdout(), "Saved "+path, opts.noColor)
	return nil
}

// askConnection prompts for the values missing from cfg
func askConnection(cfg *onpage.Config) error {
	var questions []*survey.Question

	if cfg.Endpoint == "" {
		questions = append(questions, &survey.Question{
			Name: "endpoint",
			Prompt: &survey.Input{
				Message: "Endpoint (company name or API URL):",
				Help:    "A bare name such as acme expands to https://acme.onpage.it/api",
			},
			Validate:  survey.Required,
			Transform: survey.TransformString(strings.TrimSpace),
		})
	}
	if cfg.Token == "" {
		questions = append(questions, &survey.Question{
			Name:     "token",
			Prompt:   &survey.Password{Message: "API token:"},
			Validate: survey.ComposeValidators(survey.Required, validateToken),
		})
	}

	answers := struct {
		Endpoint string `survey:"endpoint"`
		Token    string `survey:"token"`
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	if answers.Endpoint != "" {
		cfg.Endpoint = answers.Endpoint
	}
	if answers.Token != "" {
		cfg.Token = answers.Token
	}
	return nil
}

func validateToken(v interface{}) error {
	s, _ := v.(string)
	if strings.Contains(s, "/") {
		return errors.New("token must not contain '/'")
	}
	return nil
}
