package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"go.jacobcolvin.com/taglog/dispatch"
	"go.jacobcolvin.com/taglog/log"
	"go.jacobcolvin.com/taglog/plugin"
	"go.jacobcolvin.com/taglog/plugin/console"
	"go.jacobcolvin.com/taglog/plugin/hclogsink"
	"go.jacobcolvin.com/taglog/plugin/slogsink"
	"go.jacobcolvin.com/taglog/tag"
	"go.jacobcolvin.com/taglog/version"
)

// Sink names accepted by --sink.
const (
	sinkConsole = "console"
	sinkJSON    = "json"
	sinkLogfmt  = "logfmt"
	sinkText    = "text"
	sinkHclog   = "hclog"
)

// Colour modes accepted by --color.
const (
	colorAuto   = "auto"
	colorAlways = "always"
	colorNever  = "never"
)

// Output formats accepted by tags --output.
const (
	outputText = "text"
	outputYAML = "yaml"
)

var (
	// ErrUnknownSink indicates an unrecognized --sink value.
	ErrUnknownSink = errors.New("unknown sink")
	// ErrUnknownColor indicates an unrecognized --color value.
	ErrUnknownColor = errors.New("unknown color mode")
	// ErrUnknownOutput indicates an unrecognized --output value.
	ErrUnknownOutput = errors.New("unknown output format")
)

func allSinks() []string {
	return []string{sinkConsole, sinkJSON, sinkLogfmt, sinkText, sinkHclog}
}

// root holds configuration shared by every subcommand.
type root struct {
	stdout io.Writer
	stderr io.Writer
	log    *log.Config
	tags   *dispatch.Config
	envErr error
	logger *slog.Logger
}

// syncWriter serializes writes from sinks sharing one output.
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.w.Write(p) //nolint:wrapcheck // Transparent writer.
}

// newRootCmd builds the command tree. environ overrides the process
// environment when non-nil.
func newRootCmd(stdout, stderr io.Writer, environ map[string]string) *cobra.Command {
	r := &root{
		stdout: &syncWriter{w: stdout},
		stderr: stderr,
		log:    log.NewConfig(),
		tags:   dispatch.NewConfig(),
		logger: log.Discard(),
	}

	// Environment values become flag defaults, so flags still win.
	r.envErr = r.tags.LoadEnvFrom(environ)

	cmd := &cobra.Command{
		Use:   "taglog",
		Short: "Send tagged log messages through output plugins",
		Long: heredoc.Doc(`
			taglog sends messages tagged with a severity, such as debug, info or
			error, or any custom tag, through one or more output plugins.

			Tags can be disabled with --disable-tag or described in a YAML file
			passed with --tags-file. Settings may also be provided through
			TAGLOG_TAGS_FILE, TAGLOG_DISABLED_TAGS, TAGLOG_NO_ERRORS and
			TAGLOG_NO_ERROR_TAGS.
		`),
		SilenceErrors:     true,
		SilenceUsage:      true,
		ValidArgsFunction: cobra.NoFileCompletions,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if r.envErr != nil {
				return r.envErr
			}

			h, err := r.log.NewHandler(r.stderr)
			if err != nil {
				return err
			}

			r.logger = slog.New(h)

			return nil
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	r.log.RegisterFlags(cmd.PersistentFlags())
	r.tags.RegisterFlags(cmd.PersistentFlags())

	for _, err := range []error{
		r.log.RegisterCompletions(cmd),
		r.tags.RegisterCompletions(cmd),
	} {
		if err != nil {
			fmt.Fprintf(stderr, "register completions: %v\n", err)
		}
	}

	cmd.AddCommand(
		r.emitCmd(),
		r.tagsCmd(),
		r.schemaCmd(),
		r.versionCmd(),
	)

	return cmd
}

type emitOptions struct {
	sinks     []string
	color     string
	timestamp int64
}

func (r *root) emitCmd() *cobra.Command {
	opts := &emitOptions{}

	cmd := &cobra.Command{
		Use:   "emit <tag> <message> [args...]",
		Short: "Log a message under a tag",
		Long: heredoc.Doc(`
			Log a message under a tag. Extra arguments are substituted into
			printf-style verbs in the message; arguments without a matching
			verb are appended, separated by spaces.
		`),
		Example: heredoc.Doc(`
			taglog emit info "listening on %s" :8080
			taglog emit --sink json --sink console audit "user %s logged in" ada
			taglog emit --disable-tag debug debug "not printed"
		`),
		Args: cobra.MinimumNArgs(2),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return tag.BuiltinNames(), cobra.ShellCompDirectiveNoFileComp
			}

			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(_ *cobra.Command, args []string) error {
			return r.emit(opts, args[0], args[1], args[2:])
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&opts.sinks, "sink", []string{sinkConsole},
		fmt.Sprintf("output sink, repeatable, one of: %s", allSinks()))
	flags.StringVar(&opts.color, "color", colorAuto,
		fmt.Sprintf("console colour mode, one of: %s", []string{colorAuto, colorAlways, colorNever}))
	flags.Int64Var(&opts.timestamp, "timestamp", 0,
		"timestamp in epoch milliseconds, defaults to now")

	for name, values := range map[string][]string{
		"sink":  allSinks(),
		"color": {colorAuto, colorAlways, colorNever},
	} {
		err := cmd.RegisterFlagCompletionFunc(name,
			cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp))
		if err != nil {
			fmt.Fprintf(r.stderr, "register completions: %v\n", err)
		}
	}

	return cmd
}

func (r *root) emit(opts *emitOptions, tagName, message string, rawArgs []string) error {
	dopts := []dispatch.Option{dispatch.WithLogger(r.logger)}
	if opts.timestamp != 0 {
		dopts = append(dopts, dispatch.WithTimestampFunc(func() int64 { return opts.timestamp }))
	}

	d, err := r.tags.NewDispatcher(dopts...)
	if err != nil {
		return err
	}

	specs := pluginSpecs(d.Tags(), tagName)

	for _, name := range opts.sinks {
		p, err := r.newSink(name, opts.color, plugin.WithTags(specs...))
		if err != nil {
			return err
		}

		d.AddPlugin(p)
	}

	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = a
	}

	err = d.Custom(tagName, message, args...)

	d.Wait()

	return err
}

func (r *root) newSink(name, color string, base ...plugin.Option) (plugin.Plugin, error) {
	switch strings.ToLower(name) {
	case sinkConsole:
		opts := []console.Option{console.WithBase(base...)}

		switch color {
		case colorAuto:
		case colorAlways:
			opts = append(opts, console.WithColor(true))
		case colorNever:
			opts = append(opts, console.WithColor(false))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownColor, color)
		}

		return console.New(r.stdout, opts...), nil

	case sinkJSON, sinkLogfmt, sinkText:
		h := log.NewHandler(r.stdout, log.LevelDebug, log.Format(strings.ToLower(name)))

		return slogsink.New(h, slogsink.WithBase(base...), slogsink.WithDefaultLevel(slog.LevelInfo)), nil

	case sinkHclog:
		return hclogsink.NewWriter(r.stdout, "taglog", false, base...), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownSink, name)
}

// pluginSpecs gives plugins every tag the dispatcher knows, plus extra,
// all enabled. The dispatcher alone decides what is filtered.
func pluginSpecs(tags []tag.Tag, extra string) []tag.Spec {
	specs := make([]tag.Spec, 0, len(tags)+1)
	for _, t := range tags {
		specs = append(specs, tag.Spec{Name: t.Name, Code: t.Code, Enabled: true, Error: true})
	}

	key := tag.Normalize(extra)
	if !slices.ContainsFunc(specs, func(s tag.Spec) bool { return s.Name == key }) {
		specs = append(specs, tag.Spec{Name: key, Enabled: true, Error: true})
	}

	return specs
}

func (r *root) tagsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:               "tags",
		Short:             "List tags and their state",
		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := r.tags.NewDispatcher(dispatch.WithLogger(r.logger))
			if err != nil {
				return err
			}

			switch output {
			case outputText:
				return writeTagTable(r.stdout, d)
			case outputYAML:
				return writeTagYAML(r.stdout, d)
			}

			return fmt.Errorf("%w: %q", ErrUnknownOutput, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText,
		fmt.Sprintf("output format, one of: %s", []string{outputText, outputYAML}))

	return cmd
}

func writeTagTable(w io.Writer, d *dispatch.Dispatcher) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "TAG\tENABLED\tERRORS\tCODE")

	for _, t := range d.Tags() {
		errEnabled, err := d.ErrorEnabled(t.Name)
		if err != nil {
			return err
		}

		code := "-"
		if t.Code != nil {
			code = fmt.Sprint(*t.Code)
		}

		fmt.Fprintf(tw, "%s\t%t\t%t\t%s\n", t.Name, t.Enabled, errEnabled, code)
	}

	err := tw.Flush()
	if err != nil {
		return fmt.Errorf("write tags: %w", err)
	}

	return nil
}

// writeTagYAML writes the tag set in the tag file format, so the output
// can be edited and passed back with --tags-file.
func writeTagYAML(w io.Writer, d *dispatch.Dispatcher) error {
	doc := yaml.MapSlice{}

	for _, t := range d.Tags() {
		errEnabled, err := d.ErrorEnabled(t.Name)
		if err != nil {
			return err
		}

		doc = append(doc, yaml.MapItem{
			Key:   t.Name,
			Value: tag.Spec{Code: t.Code, Enabled: t.Enabled, Error: errEnabled},
		})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = w.Write(out)
	if err != nil {
		return fmt.Errorf("write tags: %w", err)
	}

	return nil
}

func (r *root) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "schema",
		Short:             "Print the JSON Schema of tag files",
		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := json.MarshalIndent(tag.Schema(), "", "  ")
			if err != nil {
				return fmt.Errorf("encode schema: %w", err)
			}

			out = append(out, '\n')

			_, err = r.stdout.Write(out)
			if err != nil {
				return fmt.Errorf("write schema: %w", err)
			}

			return nil
		},
	}
}

func (r *root) versionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:               "version",
		Short:             "Display the taglog version",
		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(_ *cobra.Command, _ []string) error {
			info := version.Get()

			if !asJSON {
				fmt.Fprintln(r.stdout, info.String())
				return nil
			}

			out, err := json.Marshal(info)
			if err != nil {
				return fmt.Errorf("encode version: %w", err)
			}

			fmt.Fprintln(r.stdout, string(out))

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")

	return cmd
}
