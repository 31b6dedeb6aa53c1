package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Run modes.
const (
	ModeOnce  = "once"
	ModeServe = "serve"
)

// Source kinds.
const (
	SourceFile  = "file"
	SourceURL   = "url"
	SourceKafka = "kafka"
)

// Prior region table sources.
const (
	PriorFile     = "file"
	PriorPostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Mode            string
	DataDir         string
	SourceKind      string
	SourceFile      string
	SourceURL       string
	RegionTableFile string
	CaseDataFile    string
	ManifestFile    string
	AltNamesFile    string

	CompressCaseData bool
	VerifyExport     bool

	PriorSource string
	DatabaseURL string

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	KafkaNotify      bool
	KafkaIdleTimeout time.Duration

	FetchTimeout    time.Duration
	FetchMaxElapsed time.Duration

	HTTPAddr        string
	RefreshInterval time.Duration
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	BatchSize       int

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	idleTimeout, err := parsePositiveDuration("KAFKA_IDLE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	fetchMaxElapsed, err := parsePositiveDuration("FETCH_MAX_ELAPSED", "2m")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parsePositiveDuration("REFRESH_INTERVAL", "6h")
	if err != nil {
		return nil, err
	}

	compress, err := parseBool("COMPRESS_CASE_DATA", false)
	if err != nil {
		return nil, err
	}
	verify, err := parseBool("VERIFY_EXPORT", true)
	if err != nil {
		return nil, err
	}
	notify, err := parseBool("KAFKA_NOTIFY", false)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "./data")
	sourceURL := os.Getenv("SOURCE_URL")
	defaultKind := SourceFile
	if sourceURL != "" {
		defaultKind = SourceURL
	}

	cfg := &Config{
		Mode:             sharedcfg.EnvOrDefault("MODE", ModeOnce),
		DataDir:          dataDir,
		SourceKind:       sharedcfg.EnvOrDefault("SOURCE_KIND", defaultKind),
		SourceFile:       sharedcfg.EnvOrDefault("SOURCE_FILE", filepath.Join(dataDir, "COVID-19-Cases.csv")),
		SourceURL:        sourceURL,
		RegionTableFile:  sharedcfg.EnvOrDefault("REGION_TABLE_FILE", "regioninfo.csv"),
		CaseDataFile:     sharedcfg.EnvOrDefault("CASE_DATA_FILE", "caseinfo.dat"),
		ManifestFile:     sharedcfg.EnvOrDefault("MANIFEST_FILE", "manifest.json"),
		AltNamesFile:     os.Getenv("ALT_NAMES_FILE"),
		CompressCaseData: compress,
		VerifyExport:     verify,
		PriorSource:      sharedcfg.EnvOrDefault("PRIOR_SOURCE", PriorFile),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "case-rows"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "case-artifacts"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "case-data-etl"),
		KafkaNotify:      notify,
		KafkaIdleTimeout: idleTimeout,
		FetchTimeout:     fetchTimeout,
		FetchMaxElapsed:  fetchMaxElapsed,
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		RefreshInterval:  refreshInterval,
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		BatchSize:        batchSize,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.Mode {
	case ModeOnce, ModeServe:
	default:
		return fmt.Errorf("invalid MODE %q", cfg.Mode)
	}

	switch cfg.SourceKind {
	case SourceFile:
		if cfg.SourceFile == "" {
			return errors.New("SOURCE_FILE is required")
		}
	case SourceURL:
		if cfg.SourceURL == "" {
			return errors.New("SOURCE_URL is required")
		}
	case SourceKafka:
		if cfg.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	default:
		return fmt.Errorf("invalid SOURCE_KIND %q", cfg.SourceKind)
	}

	switch cfg.PriorSource {
	case PriorFile:
	case PriorPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("PRIOR_SOURCE is postgres but DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("invalid PRIOR_SOURCE %q", cfg.PriorSource)
	}

	if cfg.DataDir == "" {
		return errors.New("DATA_DIR is required")
	}
	for name, v := range map[string]string{
		"REGION_TABLE_FILE": cfg.RegionTableFile,
		"CASE_DATA_FILE":    cfg.CaseDataFile,
		"MANIFEST_FILE":     cfg.ManifestFile,
	} {
		if v == "" || filepath.Base(v) != v {
			return fmt.Errorf("%s must be a plain file name", name)
		}
	}

	if (cfg.SourceKind == SourceKafka || cfg.KafkaNotify) && len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaNotify && cfg.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

// RegionTablePath returns the published location of the region table.
func (cfg *Config) RegionTablePath() string {
	return filepath.Join(cfg.DataDir, cfg.RegionTableFile)
}

// CaseDataPath returns the published location of the binary case data.
func (cfg *Config) CaseDataPath() string {
	return filepath.Join(cfg.DataDir, cfg.CaseDataFile)
}

// ManifestPath returns the published location of the run manifest.
func (cfg *Config) ManifestPath() string {
	return filepath.Join(cfg.DataDir, cfg.ManifestFile)
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parseBool(name string, def bool) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
