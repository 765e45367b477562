package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/scint-data/spectrum.report/internal/fsutil"
)

// Config represents the startup configuration for the recorder. All fields
// are pointers so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for everything else.
type Config struct {
	// Serial link params
	SerialPort  *string `json:"serial_port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "1s"

	// Server params
	ListenAddr *string `json:"listen_addr,omitempty"`

	// Storage params
	DBFile        *string `json:"db_file,omitempty"`
	MigrationsDir *string `json:"migrations_dir,omitempty"`

	// Autosave params
	AutosaveDir *string `json:"autosave_dir,omitempty"`
	WritePlots  *bool   `json:"write_plots,omitempty"`

	// Display params
	RateUnit *string `json:"rate_unit,omitempty"` // "cpm" or "cps"
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json extension
// and stay under the max file size. Fields omitted from the JSON keep their
// defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	return loadFrom(fsutil.OSFileSystem{}, path)
}

func loadFrom(fs fsutil.FileSystem, path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fs.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fs.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		if _, err := time.ParseDuration(*c.ReadTimeout); err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
	}

	if c.RateUnit != nil {
		switch *c.RateUnit {
		case "cpm", "cps":
		default:
			return fmt.Errorf("rate_unit must be \"cpm\" or \"cps\", got %q", *c.RateUnit)
		}
	}

	return nil
}

// GetSerialPort returns the serial device path or the default.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud rate or the default. The Triathler and the
// BetaScout both ship configured for 9600.
func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil {
		return 9600
	}
	return *c.BaudRate
}

// GetReadTimeout parses and returns the serial read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil {
		return time.Second
	}
	return d
}

// GetListenAddr returns the HTTP listen address or the default.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetDBFile returns the SQLite database path or the default.
func (c *Config) GetDBFile() string {
	if c.DBFile == nil || *c.DBFile == "" {
		return "spectrum.db"
	}
	return *c.DBFile
}

// GetMigrationsDir returns the migrations directory or the default.
func (c *Config) GetMigrationsDir() string {
	if c.MigrationsDir == nil || *c.MigrationsDir == "" {
		return "db/migrations"
	}
	return *c.MigrationsDir
}

// GetAutosaveDir returns the autosave export directory or the default.
func (c *Config) GetAutosaveDir() string {
	if c.AutosaveDir == nil || *c.AutosaveDir == "" {
		return "autosave"
	}
	return *c.AutosaveDir
}

// GetWritePlots returns whether autosave renders PNG plots alongside TSVs.
func (c *Config) GetWritePlots() bool {
	if c.WritePlots == nil {
		return true
	}
	return *c.WritePlots
}

// GetRateUnit returns the count-rate display unit or the default.
func (c *Config) GetRateUnit() string {
	if c.RateUnit == nil || *c.RateUnit == "" {
		return "cpm"
	}
	return *c.RateUnit
}
