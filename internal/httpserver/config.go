// Package httpserver provides the Gin server assembly used by the
// conversions service: standard middleware ordering, health endpoints with
// dependency checks, and graceful lifecycle management.
package httpserver

import "time"

// Default timeout values for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultCORSMaxAge      = 12 * time.Hour
)

// Config holds the HTTP server configuration.
type Config struct {
	// Port is the port number to listen on.
	Port int

	// Debug enables Gin debug mode and verbose logging.
	Debug bool

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// CORS holds the CORS configuration.
	CORS CORSConfig

	// ServiceName is used in health responses.
	ServiceName string

	// ServiceVersion is used in health responses.
	ServiceVersion string
}

// CORSConfig holds the CORS middleware configuration.
type CORSConfig struct {
	// Enabled determines whether CORS middleware is applied.
	Enabled bool

	// AllowedOrigins lists origins cross-domain requests may come from.
	// "*" allows all origins.
	AllowedOrigins []string

	// AllowedMethods lists the methods the client may use.
	AllowedMethods []string

	// AllowedHeaders lists the non-simple headers the client may send.
	AllowedHeaders []string

	// AllowCredentials indicates whether requests may include credentials.
	AllowCredentials bool

	// MaxAge is how long preflight results may be cached.
	MaxAge time.Duration
}

// SetDefaults applies default values where fields are unset.
func (c *Config) SetDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "1.0.0"
	}

	c.CORS.SetDefaults()
}

// SetDefaults applies default values to the CORS config where unset.
func (c *CORSConfig) SetDefaults() {
	if !c.Enabled && len(c.AllowedOrigins) == 0 {
		c.Enabled = true
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{
			"Origin",
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
		}
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultCORSMaxAge
	}
}

// NewConfig creates a Config with sensible defaults.
func NewConfig(serviceName string, port int) *Config {
	cfg := &Config{
		Port:        port,
		ServiceName: serviceName,
		CORS:        CORSConfig{Enabled: true},
	}
	cfg.SetDefaults()
	return cfg
}
