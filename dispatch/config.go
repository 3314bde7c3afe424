package dispatch

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.jacobcolvin.com/taglog/tag"
)

// EnvPrefix prefixes the environment variables read by [Config.LoadEnv].
const EnvPrefix = "TAGLOG_"

// Flags holds CLI flag names for dispatcher configuration, allowing callers
// to customize flag names while keeping sensible defaults via [NewConfig].
type Flags struct {
	TagsFile   string
	DisableTag string
	NoErrors   string
	NoErrorTag string
}

// NewConfig creates a new [Config] embedding these flag names.
func (f Flags) NewConfig() *Config {
	return &Config{
		Flags: f,
	}
}

// Config holds flag and environment values for dispatcher configuration.
//
// Create instances with [NewConfig]. Call [Config.LoadEnv] before
// [Config.RegisterFlags] so environment values become flag defaults, then
// use [Config.NewDispatcher].
type Config struct {
	TagsFile     string   `env:"TAGS_FILE"`
	DisabledTags []string `env:"DISABLED_TAGS" envSeparator:","`
	NoErrorTags  []string `env:"NO_ERROR_TAGS" envSeparator:","`
	NoErrors     bool     `env:"NO_ERRORS"`
	Flags        Flags
}

// NewConfig returns a new [Config] with the default flag names
// "tags-file", "disable-tag", "no-errors" and "no-error-tag".
func NewConfig() *Config {
	f := Flags{
		TagsFile:   "tags-file",
		DisableTag: "disable-tag",
		NoErrors:   "no-errors",
		NoErrorTag: "no-error-tag",
	}

	return f.NewConfig()
}

// LoadEnv reads TAGLOG_* variables from the process environment.
func (c *Config) LoadEnv() error {
	return c.LoadEnvFrom(nil)
}

// LoadEnvFrom reads TAGLOG_* variables from environ. A nil map means the
// process environment.
func (c *Config) LoadEnvFrom(environ map[string]string) error {
	err := env.ParseWithOptions(c, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	})
	if err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	return nil
}

// RegisterFlags adds dispatcher flags to the given [*pflag.FlagSet].
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.TagsFile, c.Flags.TagsFile, c.TagsFile,
		"YAML file describing the tag set")
	flags.StringSliceVar(&c.DisabledTags, c.Flags.DisableTag, c.DisabledTags,
		"tags to disable")
	flags.BoolVar(&c.NoErrors, c.Flags.NoErrors, c.NoErrors,
		"never attach call-site errors")
	flags.StringSliceVar(&c.NoErrorTags, c.Flags.NoErrorTag, c.NoErrorTags,
		"tags that never get call-site errors")
}

// RegisterCompletions registers shell completions for dispatcher flags on
// cmd.
func (c *Config) RegisterCompletions(cmd *cobra.Command) error {
	for _, name := range []string{c.Flags.DisableTag, c.Flags.NoErrorTag} {
		err := cmd.RegisterFlagCompletionFunc(name,
			cobra.FixedCompletions(tag.BuiltinNames(), cobra.ShellCompDirectiveNoFileComp))
		if err != nil {
			return fmt.Errorf("registering %s completion: %w", name, err)
		}
	}

	err := cmd.RegisterFlagCompletionFunc(c.Flags.TagsFile,
		cobra.FixedCompletions([]string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt))
	if err != nil {
		return fmt.Errorf("registering %s completion: %w", c.Flags.TagsFile, err)
	}

	return nil
}

// NewDispatcher creates a [Dispatcher] from the values stored in c. opts
// are applied after the configured tag set.
func (c *Config) NewDispatcher(opts ...Option) (*Dispatcher, error) {
	if c.TagsFile != "" {
		specs, err := tag.ReadSpecs(c.TagsFile)
		if err != nil {
			return nil, err
		}

		opts = append([]Option{WithTags(specs...)}, opts...)
	}

	d := New(opts...)

	for _, name := range c.DisabledTags {
		d.Set(name, false)
	}

	if c.NoErrors {
		d.DisableError()
	}

	if len(c.NoErrorTags) > 0 {
		d.DisableError(c.NoErrorTags...)
	}

	return d, nil
}
