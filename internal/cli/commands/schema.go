package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/conduit-lang/onpage/internal/cli/ui"
	"github.com/conduit-lang/onpage/internal/schema"
	"github.com/spf13/cobra"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [resource]",
		Short: "Show the catalog schema",
		Long: `Show the resources of the catalog, or the fields and relations of one
resource.

Examples:
  onpage schema
  onpage schema capitoli`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.connect(cmd)
			if err != nil {
				return err
			}

			s := client.Schema()
			if len(args) == 0 {
				printResources(cmd.OutOrStdout(), s, root.noColor)
				return nil
			}

			res, err := lookupResource(s, args[0])
			if err != nil {
				return err
			}
			printResource(cmd.OutOrStdout(), res, root.noColor)
			return nil
		},
	}
}

// lookupResource finds a resource, suggesting close names when it is missing
func lookupResource(s *schema.Schema, name string) (*schema.Resource, error) {
	res, err := s.Resource(name)
	if err == nil {
		return res, nil
	}

	var names []string
	for _, r := range s.Resources() {
		names = append(names, r.Name)
	}
	return nil, &ui.UnknownResourceError{Name: name, Candidates: names}
}

func printResources(w io.Writer, s *schema.Schema, noColor bool) {
	ui.Header(w, s.Label, noColor)

	table := ui.NewTable(w, []string{"Name", "Label", "Fields", "Relations"}, noColor)
	for _, res := range s.Resources() {
		table.AddRow(res.Name, res.Label,
			strconv.Itoa(len(res.Fields())),
			strconv.Itoa(len(res.Relations())))
	}
	table.Render()
}

func printResource(w io.Writer, res *schema.Resource, noColor bool) {
	ui.Header(w, fmt.Sprintf("%s (%s)", res.Label, res.Name), noColor)

	fields := ui.NewTable(w, []string{"Field", "Label", "Type", "Multiple"}, noColor)
	for _, f := range res.Fields() {
		fields.AddRow(f.Name, f.Label, f.TypeName, yesNo(f.Multiple))
	}
	fields.Render()

	if len(res.Relations()) == 0 {
		return
	}

	fmt.Fprintln(w)
	relations := ui.NewTable(w, []string{"Relation", "Label", "Target", "Cardinality"}, noColor)
	for _, rel := range res.Relations() {
		relations.AddRow(rel.Name, rel.Label, rel.Target, rel.Cardinality.String())
	}
	relations.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
