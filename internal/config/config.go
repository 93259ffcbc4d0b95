package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"cav-go/internal/validation"
)

// Config represents the main configuration for cav.
type Config struct {
	InstanceID string           `toml:"instance_id" validate:"required"`
	BaseDir    string           `toml:"base_dir" validate:"required"`
	LogDir     string           `toml:"log_dir"`
	Storage    StorageConfig    `toml:"storage"`
	Audit      AuditConfig      `toml:"audit"`
	Backup     BackupConfig     `toml:"backup"`
	Encryption EncryptionConfig `toml:"encryption"`
	Server     ServerConfig     `toml:"server"`
}

// StorageConfig selects the bucket store backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type" validate:"omitempty,oneof=memory filesystem sqlite badger s3"`

	// Root directory for type=filesystem.
	Root string `toml:"root,omitempty"`

	// Data directory for type=sqlite and type=badger.
	DataDir string `toml:"data_dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// AuditConfig tunes the audit log.
type AuditConfig struct {
	Capacity        int              `toml:"capacity" validate:"gte=0"`
	RetentionDays   int              `toml:"retention_days" validate:"gte=0"`
	CleanupInterval Duration         `toml:"cleanup_interval"`
	Timezone        string           `toml:"timezone,omitempty"`
	Thresholds      ThresholdsConfig `toml:"thresholds"`
}

// ThresholdsConfig tunes the suspicious activity heuristics. Zero values
// select the built-in defaults.
type ThresholdsConfig struct {
	Window           Duration `toml:"window"`
	FailedLogins     int      `toml:"failed_logins" validate:"gte=0"`
	DistinctPatients int      `toml:"distinct_patients" validate:"gte=0"`
	OffHoursEvents   int      `toml:"off_hours_events" validate:"gte=0"`
	WorkdayStartHour int      `toml:"workday_start_hour" validate:"gte=0,lte=23"`
	WorkdayEndHour   int      `toml:"workday_end_hour" validate:"gte=0,lte=23"`
}

// BackupConfig tunes the backup list and scheduled backups.
type BackupConfig struct {
	Capacity         int      `toml:"capacity" validate:"gte=0"`
	RetentionDays    int      `toml:"retention_days" validate:"gte=0"`
	ScheduleInterval Duration `toml:"schedule_interval"`
	IncludeAuditLog  bool     `toml:"include_audit_log"`
	SchemaVersion    string   `toml:"schema_version,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for encrypted exports.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"omitempty,oneof=age test"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// ServerConfig configures `cav serve`.
type ServerConfig struct {
	ListenAddr    string   `toml:"listen_addr" validate:"omitempty,hostname_port"`
	RateLimit     int      `toml:"rate_limit" validate:"gte=0"` // requests per minute per client
	AlertCooldown Duration `toml:"alert_cooldown"`
}

// Defaults applied by ApplyDefaults.
const (
	DefaultAuditCapacity    = 10000
	DefaultAuditRetention   = 365
	DefaultBackupCapacity   = 50
	DefaultBackupRetention  = 30
	DefaultListenAddr       = "127.0.0.1:8420"
	DefaultRateLimit        = 120
	DefaultCleanupInterval  = 24 * time.Hour
	DefaultScheduleInterval = 24 * time.Hour
	DefaultAlertCooldown    = time.Hour
)

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(instanceID, baseDir string) *Config {
	cfg := &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Storage: StorageConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "cav.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "cav.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued settings.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Audit.Capacity == 0 {
		c.Audit.Capacity = DefaultAuditCapacity
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = DefaultAuditRetention
	}
	if c.Audit.CleanupInterval == 0 {
		c.Audit.CleanupInterval = Duration(DefaultCleanupInterval)
	}
	if c.Backup.Capacity == 0 {
		c.Backup.Capacity = DefaultBackupCapacity
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = DefaultBackupRetention
	}
	if c.Backup.ScheduleInterval == 0 {
		c.Backup.ScheduleInterval = Duration(DefaultScheduleInterval)
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = DefaultRateLimit
	}
	if c.Server.AlertCooldown == 0 {
		c.Server.AlertCooldown = Duration(DefaultAlertCooldown)
	}
}

// Validate checks the config against its struct constraints.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Audit.Timezone != "" {
		if _, err := time.LoadLocation(c.Audit.Timezone); err != nil {
			return fmt.Errorf("invalid config: audit timezone: %w", err)
		}
	}
	return nil
}

// Location returns the configured audit time zone, or the local zone.
func (c *Config) Location() *time.Location {
	if c.Audit.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Audit.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader, applies defaults and
// validates it.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file at path. It refuses to overwrite an existing
// file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}
