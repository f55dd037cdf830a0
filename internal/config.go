package internal

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
}

type ServerConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type UploadConfig struct {
	// MaxUploadSize accepts human-readable sizes ("4GiB", "500MB").
	MaxUploadSize string        `mapstructure:"max_upload_size"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	ScratchDir    string        `mapstructure:"scratch_dir"`
}

// MaxUploadBytes resolves the configured size limit to bytes. Zero means the
// coordinator's default applies.
func (c *UploadConfig) MaxUploadBytes() (int64, error) {
	if c.MaxUploadSize == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(c.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_upload_size %q: %w", c.MaxUploadSize, err)
	}
	return size, nil
}

type StorageConfig struct {
	Backend     string   `mapstructure:"backend"`
	LocalPath   string   `mapstructure:"local_path"`
	ExternalURL string   `mapstructure:"external_url"`
	S3          S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ScannerConfig struct {
	// URL of the out-of-process content scanner. Empty disables scanning.
	URL string `mapstructure:"url"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile("files/config.yaml")

	viper.SetDefault("server.listen_addr", ":8080")
	viper.SetDefault("upload.max_upload_size", "4GiB")
	viper.SetDefault("upload.session_ttl", "24h")
	viper.SetDefault("upload.sweep_interval", "1h")
	viper.SetDefault("upload.scratch_dir", "files/scratch")
	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.local_path", "files/blobs")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := config.Upload.MaxUploadBytes(); err != nil {
		return nil, err
	}

	return &config, nil
}
