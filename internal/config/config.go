// Package config provides configuration management for the lashivgpt server.
//
// Runtime settings are parsed from CLI flags with sensible defaults.
// Provider credentials come from the environment, matching the deployment
// model of the hosted frontend. Model profiles live in an embedded TOML
// registry (see models.go).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const (
	// Version is the lashivgpt application version
	Version = "0.1.0"

	// GeminiKeyEnv is the environment variable holding the text-generation
	// provider API key.
	GeminiKeyEnv = "GOOGLE_GENERATIVE_AI_API_KEY"

	// StabilityKeyEnv is the environment variable holding the
	// image-generation provider API key.
	StabilityKeyEnv = "STABILITY_API_KEY"

	// Default values for CLI flags
	defaultPort      = 8080
	defaultDataDir   = "data"
	defaultImagesDir = "data/images"
	defaultBaseURL   = "http://localhost:8080"
	defaultLogLevel  = "info"

	// Validation constraints
	minPort = 1024
	maxPort = 65535
)

var (
	// ErrInvalidPort is returned when port is out of valid range
	ErrInvalidPort = errors.New("port must be between 1024 and 65535")
	// ErrEmptyDataDir is returned when the data directory flag is empty
	ErrEmptyDataDir = errors.New("data-dir must not be empty")
	// ErrEmptyImagesDir is returned when the images directory flag is empty
	ErrEmptyImagesDir = errors.New("images-dir must not be empty")
	// ErrInvalidLogLevel is returned when log level is not recognized
	ErrInvalidLogLevel = errors.New("log-level must be one of: debug, info, warn, error")
	// ErrShowHelp is returned when --help flag is requested
	ErrShowHelp = errors.New("help requested")
	// ErrShowVersion is returned when --version flag is requested
	ErrShowVersion = errors.New("version requested")
)

// Config holds all configuration values for the lashivgpt server.
// Values are populated from CLI flags and the environment.
type Config struct {
	// Server configuration
	Port int

	// BaseURL is the externally visible URL of this server, used when
	// building links to generated images embedded in chat replies.
	BaseURL string

	// Storage locations
	DataDir   string
	ImagesDir string

	// Logging configuration
	LogLevel string

	// Provider credentials (from environment, never flags)
	GeminiAPIKey    string
	StabilityAPIKey string

	// Internal flags
	showHelp    bool
	showVersion bool
}

// Parse parses CLI flags and the environment into a Config struct.
// It returns the parsed Config or an error if validation fails.
// If --help or --version is requested, it prints the output and returns
// ErrShowHelp or ErrShowVersion.
func Parse(args []string, output io.Writer) (*Config, error) {
	c := &Config{}

	fs := flag.NewFlagSet("lashivgpt", flag.ContinueOnError)
	fs.SetOutput(output)

	// Server flags
	fs.IntVar(&c.Port, "port", defaultPort, "HTTP server port")
	fs.StringVar(&c.BaseURL, "base-url", defaultBaseURL, "Externally visible base URL for image links")

	// Storage flags
	fs.StringVar(&c.DataDir, "data-dir", defaultDataDir, "Directory for per-user conversation history")
	fs.StringVar(&c.ImagesDir, "images-dir", defaultImagesDir, "Directory for generated images")

	// Logging flags
	fs.StringVar(&c.LogLevel, "log-level", defaultLogLevel, "Log level (debug, info, warn, error)")

	// Special flags
	fs.BoolVar(&c.showHelp, "help", false, "Show help message")
	fs.BoolVar(&c.showVersion, "version", false, "Show version information")

	// Parse flags
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Handle --help
	if c.showHelp {
		printHelp(output)
		return nil, ErrShowHelp
	}

	// Handle --version
	if c.showVersion {
		printVersion(output)
		return nil, ErrShowVersion
	}

	// Credentials come from the environment. Missing keys are not a parse
	// error: the server starts and the affected endpoints return a
	// configuration error instead.
	c.GeminiAPIKey = os.Getenv(GeminiKeyEnv)
	c.StabilityAPIKey = os.Getenv(StabilityKeyEnv)

	// Validate configuration
	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// validate checks that all configuration values are within valid ranges
func (c *Config) validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return ErrInvalidPort
	}

	if c.DataDir == "" {
		return ErrEmptyDataDir
	}

	if c.ImagesDir == "" {
		return ErrEmptyImagesDir
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		return ErrInvalidLogLevel
	}

	return nil
}

// printHelp prints usage information
func printHelp(w io.Writer) {
	fmt.Fprintf(w, `lashivgpt - chat backend proxying a generative-text provider

USAGE:
    lashivgpt [FLAGS]

FLAGS:
    --port <PORT>            HTTP server port (default: %d)
    --base-url <URL>         Externally visible base URL (default: %s)
    --data-dir <DIR>         Conversation history directory (default: %s)
    --images-dir <DIR>       Generated image directory (default: %s)
    --log-level <LEVEL>      Log level: debug, info, warn, error (default: %s)
    --help                   Show this help message
    --version                Show version information

ENVIRONMENT:
    %s    API key for text generation
    %s                 API key for image generation

EXAMPLES:
    # Start with defaults
    lashivgpt

    # Use custom port and data location
    lashivgpt --port 3000 --data-dir /var/lib/lashivgpt
`,
		defaultPort, defaultBaseURL, defaultDataDir, defaultImagesDir, defaultLogLevel,
		GeminiKeyEnv, StabilityKeyEnv)
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "lashivgpt %s\n", Version)
}
