// Package config loads treewalk settings from defaults, an optional config
// file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata" // display.timezone must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"treewalk/internal/logging"
	"treewalk/internal/panorama"
	"treewalk/internal/slot"
	"treewalk/pkg/domain"
)

// EnvPrefix prefixes every environment override, e.g. TREEWALK_SERVER_ADDR.
const EnvPrefix = "TREEWALK"

// Settings is the full configuration tree.
type Settings struct {
	Server    ServerSettings    `mapstructure:"server"`
	Log       LogSettings       `mapstructure:"log"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Mapillary MapillarySettings `mapstructure:"mapillary"`
	Panorama  PanoramaSettings  `mapstructure:"panorama"`
	Session   SessionSettings   `mapstructure:"session"`
	Display   DisplaySettings   `mapstructure:"display"`
}

type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxImportBytes  int64         `mapstructure:"max_import_bytes"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageSettings struct {
	Driver      string     `mapstructure:"driver"`
	Slot        string     `mapstructure:"slot"`
	FSRoot      string     `mapstructure:"fs_root"`
	SQLitePath  string     `mapstructure:"sqlite_path"`
	PostgresDSN string     `mapstructure:"postgres_dsn"`
	MySQLDSN    string     `mapstructure:"mysql_dsn"`
	S3          S3Settings `mapstructure:"s3"`
}

type S3Settings struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Prefix    string `mapstructure:"prefix"`
	PathStyle bool   `mapstructure:"path_style"`
}

type MapillarySettings struct {
	Token       string        `mapstructure:"token"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	SearchLimit int           `mapstructure:"search_limit"`
}

type PanoramaSettings struct {
	Radius   float64       `mapstructure:"radius"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	APIURL   string        `mapstructure:"api_url"`
}

type SessionSettings struct {
	DefaultLat  float64       `mapstructure:"default_lat"`
	DefaultLng  float64       `mapstructure:"default_lng"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

type DisplaySettings struct {
	Timezone string `mapstructure:"timezone"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_import_bytes", 10<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)

	v.SetDefault("storage.driver", string(slot.DriverFilesystem))
	v.SetDefault("storage.slot", slot.DefaultName)
	v.SetDefault("storage.fs_root", "./data")
	v.SetDefault("storage.sqlite_path", "./data/treewalk.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.mysql_dsn", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.path_style", false)

	def := panorama.DefaultMapillaryConfig()
	v.SetDefault("mapillary.token", "")
	v.SetDefault("mapillary.base_url", def.BaseURL)
	v.SetDefault("mapillary.timeout", def.Timeout)
	v.SetDefault("mapillary.rate_limit", def.RequestsPerSecond)
	v.SetDefault("mapillary.search_limit", def.SearchLimit)

	v.SetDefault("panorama.radius", panorama.DefaultRadius)
	v.SetDefault("panorama.cache_ttl", 5*time.Minute)
	v.SetDefault("panorama.api_url", "")

	v.SetDefault("session.default_lat", 38.8895)
	v.SetDefault("session.default_lng", -77.0353)
	v.SetDefault("session.settle_delay", 300*time.Millisecond)

	v.SetDefault("display.timezone", "UTC")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("mapillary.token", EnvPrefix+"_MAPILLARY_TOKEN", "MAPILLARY_CLIENT_TOKEN")
	return v
}

// LoadDotEnv loads the given .env files into the process environment when
// they exist. Variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configFile when set, then decodes and validates the settings.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate rejects settings the components cannot start with.
func (s *Settings) Validate() error {
	var errs []error
	if !slot.ValidDriver(slot.Driver(s.Storage.Driver)) {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Storage.Driver))
	}
	if s.Panorama.Radius <= 0 {
		errs = append(errs, fmt.Errorf("panorama.radius: must be positive, got %g", s.Panorama.Radius))
	}
	if _, err := time.LoadLocation(s.Display.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("display.timezone: %w", err))
	}
	if _, err := logging.New(s.Log.Level, s.Log.Format, io.Discard); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	return errors.Join(errs...)
}

// SlotConfig maps the storage settings onto the slot factory config.
func (s *Settings) SlotConfig() slot.Config {
	st := s.Storage
	return slot.Config{
		Driver:      slot.Driver(st.Driver),
		Name:        st.Slot,
		FSRoot:      st.FSRoot,
		SQLitePath:  st.SQLitePath,
		PostgresDSN: st.PostgresDSN,
		MySQLDSN:    st.MySQLDSN,
		S3: slot.S3Config{
			Bucket:    st.S3.Bucket,
			Region:    st.S3.Region,
			Endpoint:  st.S3.Endpoint,
			Prefix:    st.S3.Prefix,
			PathStyle: st.S3.PathStyle,
		},
	}
}

// PanoramaConfig maps the lookup settings onto the finder factory config.
func (s *Settings) PanoramaConfig() panorama.Config {
	m := s.Mapillary
	return panorama.Config{
		APIURL: s.Panorama.APIURL,
		Mapillary: panorama.MapillaryConfig{
			Token:             m.Token,
			BaseURL:           m.BaseURL,
			Timeout:           m.Timeout,
			RequestsPerSecond: m.RateLimit,
			SearchLimit:       m.SearchLimit,
		},
		CacheTTL: s.Panorama.CacheTTL,
	}
}

// DefaultCenter is the initial map center.
func (s *Settings) DefaultCenter() domain.LatLng {
	return domain.LatLng{Lat: s.Session.DefaultLat, Lng: s.Session.DefaultLng}
}

// Location returns the display time zone.
func (s *Settings) Location() (*time.Location, error) {
	return time.LoadLocation(s.Display.Timezone)
}
