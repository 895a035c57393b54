package commands

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/onpage/pkg/onpage"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
)

type postOptions struct {
	*rootOptions
	method string
}

// NewPostCommand creates the post command
func NewPostCommand(root *rootOptions) *cobra.Command {
	opts := &postOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "post <endpoint> [key=value | key=@file]...",
		Short: "Send data to an API endpoint",
		Long: `Send data to an API endpoint and print the JSON response.

Keys may be dotted to build nested objects; fields.codice=P-1 sends
{"fields": {"codice": "P-1"}}. A value starting with @ uploads the named
local file, which switches the request to multipart.

Examples:
  onpage post things fields.codice=P-1 fields.scheda=@scheda.pdf
  onpage post things id=42 --method delete`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd, opts, args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&opts.method, "method", "X", "post", "Request semantics (post, get, delete)")

	return cmd
}

func runPost(cmd *cobra.Command, opts *postOptions, endpoint string, assignments []string) error {
	data, err := buildPayload(assignments)
	if err != nil {
		return err
	}

	client, err := opts.connect(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	var resp any
	switch strings.ToLower(opts.method) {
	case "post":
		resp, err = client.Post(ctx, endpoint, data)
	case "get":
		resp, err = client.Get(ctx, endpoint, data)
	case "delete":
		resp, err = client.Delete(ctx, endpoint, data)
	default:
		return fmt.Errorf("unknown method %q", opts.method)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// buildPayload turns key=value arguments into a nested payload. Repeating a
// key collects its values into a list.
func buildPayload(assignments []string) (*onpage.Map, error) {
	root := onpage.NewMap()
	for _, arg := range assignments {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", arg)
		}

		var value any = raw
		if path, isFile := strings.CutPrefix(raw, "@"); isFile {
			if path == "" {
				return nil, fmt.Errorf("invalid assignment %q: missing file name", arg)
			}
			value = onpage.Upload(path)
		}

		if err := assign(root, strings.Split(key, "."), value); err != nil {
			return nil, fmt.Errorf("invalid assignment %q: %w", arg, err)
		}
	}
	return root, nil
}

func assign(m *onpage.Map, path []string, value any) error {
	name := path[0]
	if name == "" {
		return fmt.Errorf("empty key segment")
	}
	existing, exists := m.Get(name)

	if len(path) == 1 {
		switch prev := existing.(type) {
		case nil:
			if exists {
				return fmt.Errorf("%s is already set", name)
			}
			m.Set(name, value)
		case *onpage.Map:
			return fmt.Errorf("%s is an object", name)
		case onpage.List:
			m.Set(name, append(prev, value))
		default:
			m.Set(name, onpage.List{prev, value})
		}
		return nil
	}

	child, ok := existing.(*onpage.Map)
	if !exists {
		child = onpage.NewMap()
		m.Set(name, child)
	} else if !ok {
		return fmt.Errorf("%s is not an object", name)
	}
	return assign(child, path[1:], value)
}
