package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/conduit-lang/onpage/internal/cli/ui"
	"github.com/conduit-lang/onpage/internal/schema"
	"github.com/conduit-lang/onpage/pkg/onpage"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// maxCellWidth keeps long text fields from stretching table columns
const maxCellWidth = 48

type queryOptions struct {
	*rootOptions
	with   []string
	where  []string
	fields []string
	limit  int
	offset int
	first  bool
	links  bool
	output string
	audit  string
}

// NewQueryCommand creates the query command
func NewQueryCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "query <resource>",
		Short: "List the records of a resource",
		Long: `List the records of a resource, optionally preloading relations.

Relations named with --with are embedded in the response and shown as
columns of linked record ids. Paths can be nested with dots.

Examples:
  onpage query capitoli
  onpage query capitoli --with argomenti.prodotti --limit 5
  onpage query prodotti --where codice=P-1 --first -o json
  onpage query argomenti --fields nome,immagine --links --audit used.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.with, "with", "w", nil, "Relations to preload, as dotted paths")
	flags.StringArrayVar(&opts.where, "where", nil, "Filter as key=value (repeatable)")
	flags.StringSliceVar(&opts.fields, "fields", nil, "Fields to show (default: all)")
	flags.IntVar(&opts.limit, "limit", 0, "Maximum number of records")
	flags.IntVar(&opts.offset, "offset", 0, "Number of records to skip")
	flags.BoolVar(&opts.first, "first", false, "Only fetch the first record")
	flags.BoolVar(&opts.links, "links", false, "Show file fields as download links")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "Output format (table, json)")
	flags.StringVar(&opts.audit, "audit", "", "Write the fields read to a CSV file")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *queryOptions, resource string) error {
	if opts.output != outputTable && opts.output != outputJSON {
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	filters, err := parseAssignments(opts.where)
	if err != nil {
		return err
	}

	client, err := opts.connect(cmd)
	if err != nil {
		return err
	}

	res, err := lookupResource(client.Schema(), resource)
	if err != nil {
		return err
	}
	fields, err := selectFields(res, opts.fields)
	if err != nil {
		return err
	}

	q := client.Query(resource).
		Filters(filters).
		With(opts.with...).
		Limit(opts.limit).
		Offset(opts.offset)
	if err := q.Err(); err != nil {
		return err
	}

	ctx := commandContext(cmd)
	var col *onpage.Collection
	if opts.first {
		rec, err := q.First(ctx)
		if err != nil {
			return err
		}
		col = onpage.NewCollection(rec)
	} else {
		if col, err = q.All(ctx); err != nil {
			return err
		}
	}

	v := &recordView{
		ctx:       ctx,
		fields:    fields,
		relations: topLevel(opts.with),
		links:     opts.links,
	}

	switch opts.output {
	case outputJSON:
		err = v.writeJSON(cmd.OutOrStdout(), col)
	default:
		err = v.writeTable(cmd.OutOrStdout(), col, opts.noColor)
		if err == nil && !opts.first {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d records\n", col.Len(), col.Count())
		}
	}
	if err != nil {
		return err
	}

	if opts.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d requests\n", client.RequestCount())
	}

	if opts.audit != "" {
		if err := client.DumpUsedFields(opts.audit); err != nil {
			return err
		}
		ui.WriteSuccess(cmd.ErrOrStderr(), "Field usage written to "+opts.audit, opts.noColor)
	}
	return nil
}

// parseAssignments splits key=value arguments
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", arg)
		}
		out[key] = value
	}
	return out, nil
}

func selectFields(res *schema.Resource, names []string) ([]*schema.Field, error) {
	if len(names) == 0 {
		return res.Fields(), nil
	}

	fields := make([]*schema.Field, 0, len(names))
	for _, name := range names {
		f, err := res.Field(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// topLevel returns the first segment of each path, without duplicates
func topLevel(paths []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range paths {
		name, _, _ := strings.Cut(p, ".")
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// recordView renders records for the terminal
type recordView struct {
	ctx       context.Context
	fields    []*schema.Field
	relations []string
	links     bool
}

func (v *recordView) writeTable(w io.Writer, col *onpage.Collection, noColor bool) error {
	headers := []string{"ID"}
	for _, f := range v.fields {
		headers = append(headers, f.Name)
	}
	headers = append(headers, v.relations...)

	table := ui.NewTable(w, headers, noColor)
	for _, rec := range col.Records() {
		row := []string{strconv.FormatInt(rec.ID(), 10)}
		for _, f := range v.fields {
			values, err := v.fieldValues(rec, f)
			if err != nil {
				return err
			}
			row = append(row, ui.Truncate(strings.Join(values, ", "), maxCellWidth))
		}
		for _, name := range v.relations {
			ids, err := v.relationIDs(rec, name)
			if err != nil {
				return err
			}
			row = append(row, joinIDs(ids))
		}
		table.AddRow(row...)
	}
	table.Render()
	return nil
}

func (v *recordView) writeJSON(w io.Writer, col *onpage.Collection) error {
	out := make(onpage.List, 0, col.Len())
	for _, rec := range col.Records() {
		fields := onpage.NewMap()
		for _, f := range v.fields {
			value, err := v.jsonValue(rec, f)
			if err != nil {
				return err
			}
			fields.Set(f.Name, value)
		}

		item := onpage.NewMap("id", rec.ID(), "fields", fields)
		if len(v.relations) > 0 {
			relations := onpage.NewMap()
			for _, name := range v.relations {
				ids, err := v.relationIDs(rec, name)
				if err != nil {
					return err
				}
				relations.Set(name, ids)
			}
			item.Set("relations", relations)
		}
		out = append(out, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (v *recordView) fieldValues(rec *onpage.Record, f *schema.Field) ([]string, error) {
	if f.Type.IsFile() {
		files, err := rec.Files(f.Name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(files))
		for _, file := range files {
			if v.links {
				out = append(out, file.Link())
			} else {
				out = append(out, file.Name)
			}
		}
		return out, nil
	}

	values, err := rec.Strings(f.Name)
	if err == nil {
		return values, nil
	}

	// structured values such as json fields
	raw, verr := rec.Val(f.Name)
	if verr != nil {
		return nil, verr
	}
	encoded, merr := json.Marshal(raw)
	if merr != nil {
		return nil, err
	}
	return []string{string(encoded)}, nil
}

func (v *recordView) jsonValue(rec *onpage.Record, f *schema.Field) (any, error) {
	if f.Type.IsFile() && v.links {
		links, err := v.fieldValues(rec, f)
		if err != nil {
			return nil, err
		}
		if f.Multiple {
			return links, nil
		}
		if len(links) == 0 {
			return nil, nil
		}
		return links[0], nil
	}
	return rec.Val(f.Name)
}

func (v *recordView) relationIDs(rec *onpage.Record, name string) ([]int64, error) {
	related, err := rec.Rel(v.ctx, name)
	if err != nil {
		return nil, err
	}
	return related.IDs(), nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
