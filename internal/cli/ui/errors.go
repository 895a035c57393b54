package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/conduit-lang/onpage/pkg/onpage"
	"github.com/fatih/color"
)

// ErrorLevel is the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
)

// ErrorOptions describes a formatted error message
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders a message in the form:
//
//	❌ RESOURCE NOT FOUND: Cannot find resource 'capitol'.
//
//	   Did you mean: capitoli?
//
//	   → See all resources: onpage schema
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	header := color.New(color.FgRed, color.Bold)
	symbol := "❌"
	if opts.Level == ErrorLevelWarning {
		header = color.New(color.FgYellow, color.Bold)
		symbol = "⚠️"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		header.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// FormatSuccess renders a success line
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ResourceNotFoundError reports an undeclared resource with close names
func ResourceNotFoundError(name string, candidates []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:      "resource not found",
		Problem:      fmt.Sprintf("Cannot find resource '%s'.", name),
		Suggestions:  Suggest(name, candidates),
		HelpCommands: []string{"See all resources: onpage schema"},
		NoColor:      noColor,
	})
}

// ConfigError reports missing or invalid connection settings
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"Create a config file: onpage init",
			"Or set ONPAGE_ENDPOINT and ONPAGE_TOKEN",
		},
		NoColor: noColor,
	})
}

// UnknownResourceError carries the declared resource names so the message
// can suggest close matches
type UnknownResourceError struct {
	Name       string
	Candidates []string
}

// Error implements the error interface
func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("%v: %s", onpage.ErrUnknownResource, e.Name)
}

// Unwrap returns onpage.ErrUnknownResource
func (e *UnknownResourceError) Unwrap() error {
	return onpage.ErrUnknownResource
}

// Describe renders err for the terminal, choosing the layout from its kind
func Describe(err error, noColor bool) string {
	var apiErr *onpage.APIError
	var transportErr *onpage.TransportError
	var unknown *UnknownResourceError

	switch {
	case errors.As(err, &unknown):
		return ResourceNotFoundError(unknown.Name, unknown.Candidates, noColor)
	case errors.Is(err, onpage.ErrInvalidConfig):
		return ConfigError(err.Error(), noColor)
	case errors.As(err, &apiErr):
		help := []string{"Check the endpoint and token: onpage schema"}
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			help = []string{"The token was rejected; run onpage init to replace it"}
		}
		return FormatError(ErrorOptions{
			Context:      "api error",
			Problem:      err.Error(),
			HelpCommands: help,
			NoColor:      noColor,
		})
	case errors.As(err, &transportErr):
		problem := err.Error()
		if transportErr.Timeout() {
			problem = "request timed out: " + problem
		}
		return FormatError(ErrorOptions{
			Context:      "connection failed",
			Problem:      problem,
			HelpCommands: []string{"Raise the limit with --timeout"},
			NoColor:      noColor,
		})
	case errors.Is(err, onpage.ErrConfiguration), errors.Is(err, onpage.ErrUnknownRelation), errors.Is(err, onpage.ErrUnknownField):
		return FormatError(ErrorOptions{
			Context:      "invalid query",
			Problem:      err.Error(),
			HelpCommands: []string{"List fields and relations: onpage schema <resource>"},
			NoColor:      noColor,
		})
	}
	return FormatError(ErrorOptions{Problem: err.Error(), NoColor: noColor})
}
