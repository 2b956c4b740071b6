package internal

// Option configures the application before it starts.
type Option func(*application)

type application struct {
	config  *Config
	profile string
}

// WithConfig supplies the full configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithProfile overrides the cache profile from the configuration. An empty
// profile leaves the configured value in place.
func WithProfile(profile string) Option {
	return func(a *application) {
		a.profile = profile
	}
}
