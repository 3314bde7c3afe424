// Package log builds [log/slog] handlers from level and format names.
//
// It supports JSON ([FormatJSON]), logfmt ([FormatLogfmt]) and a human
// readable, coloured text format ([FormatText]) rendered by charm log. The
// handlers back the dispatcher's own diagnostics and the slog sink plugin.
//
// Typical usage registers flags with a [Config], then builds a handler at
// startup:
//
//	cfg := log.NewConfig()
//	cfg.RegisterFlags(rootCmd.PersistentFlags())
//	cfg.RegisterCompletions(rootCmd)
//
//	handler, err := cfg.NewHandler(os.Stderr)
//	logger := slog.New(handler)
package log
