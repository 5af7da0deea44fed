package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	stdout  io.Writer
	json    bool
	version string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where run summaries are printed.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

// WithJSON prints run summaries as JSON instead of text.
func WithJSON(enabled bool) Option {
	return func(a *application) {
		a.json = enabled
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
