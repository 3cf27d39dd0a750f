package bitcask

const (
	defaultHost = "127.0.0.1"
	defaultPort = 9999
)

// connConfig holds the client's connection settings. Unlike the storage
// engine's config.Options, this never travels to the server — it only
// decides which TCP address Connect dials.
type connConfig struct {
	Host string
	Port int
}

func defaultConnConfig() *connConfig {
	return &connConfig{Host: defaultHost, Port: defaultPort}
}

// Option configures Connect.
type Option func(*connConfig)

// WithHost overrides the server host. Defaults to 127.0.0.1.
func WithHost(host string) Option {
	return func(c *connConfig) {
		c.Host = host
	}
}

// WithPort overrides the server port. Defaults to 9999.
func WithPort(port int) Option {
	return func(c *connConfig) {
		c.Port = port
	}
}
