package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string         `json:"log_level" yaml:"log_level" toml:"log_level"`
	Barrier  BarrierConfig  `json:"barrier" yaml:"barrier" toml:"barrier"`
	Token    TokenConfig    `json:"token" yaml:"token" toml:"token"`
	Registry RegistryConfig `json:"registry" yaml:"registry" toml:"registry"`
	Actuator ActuatorConfig `json:"actuator" yaml:"actuator" toml:"actuator"`
	Camera   CameraConfig   `json:"camera" yaml:"camera" toml:"camera"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest" toml:"ingest"`
	Publish  PublishConfig  `json:"publish" yaml:"publish" toml:"publish"`
	API      APIConfig      `json:"api" yaml:"api" toml:"api"`
	Storage  StorageConfig  `json:"storage" yaml:"storage" toml:"storage"`
	Events   EventsConfig   `json:"events" yaml:"events" toml:"events"`
}

type BarrierConfig struct {
	OpenSeconds int           `json:"open_seconds" yaml:"open_seconds" toml:"open_seconds"`
	Tick        time.Duration `json:"tick" yaml:"tick" toml:"tick"`
}

type TokenConfig struct {
	FreshnessSeconds int64 `json:"freshness_seconds" yaml:"freshness_seconds" toml:"freshness_seconds"`
}

const (
	RegistrySourceFile    = "file"
	RegistrySourceStorage = "storage"
)

type RegistryConfig struct {
	Source        string        `json:"source" yaml:"source" toml:"source"`
	Path          string        `json:"path" yaml:"path" toml:"path"`
	WatchInterval time.Duration `json:"watch_interval" yaml:"watch_interval" toml:"watch_interval"`
}

type ActuatorConfig struct {
	URL     string        `json:"url" yaml:"url" toml:"url"`
	Param   string        `json:"param" yaml:"param" toml:"param"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type CameraConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
	URL          string        `json:"url" yaml:"url" toml:"url"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type IngestConfig struct {
	REST     RESTConfig     `json:"rest" yaml:"rest" toml:"rest"`
	Kafka    KafkaConfig    `json:"kafka" yaml:"kafka" toml:"kafka"`
	FileTail FileTailConfig `json:"file_tail" yaml:"file_tail" toml:"file_tail"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end" toml:"start_at_end"`
	Files      []string `json:"files" yaml:"files" toml:"files"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers" toml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic" toml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id" toml:"group_id"`
}

type PublishConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka" toml:"kafka"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Driver  string `json:"driver" yaml:"driver" toml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn" toml:"dsn"`
}

type EventsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit" toml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Barrier:  BarrierConfig{OpenSeconds: 10, Tick: time.Second},
		Token:    TokenConfig{FreshnessSeconds: 30},
		Registry: RegistryConfig{Source: RegistrySourceFile, Path: "plates.txt", WatchInterval: 5 * time.Second},
		Actuator: ActuatorConfig{URL: "http://192.168.4.1/set-servo", Param: "open", Timeout: 3 * time.Second},
		Camera: CameraConfig{
			Enabled:      false,
			URL:          "http://192.168.4.1/cam-hi.jpg",
			PollInterval: 100 * time.Millisecond,
			Timeout:      2 * time.Second,
		},
		Ingest: IngestConfig{
			REST:     RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:    KafkaConfig{Enabled: false},
			FileTail: FileTailConfig{Enabled: false, StartAtEnd: true},
		},
		Publish: PublishConfig{Kafka: KafkaConfig{Enabled: false}},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:qrgate.db?_pragma=busy_timeout(5000)"},
		Events:  EventsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if isTOML(path) {
		return ParseTOML(content)
	}
	return Parse(content)
}

// Parse decodes YAML or JSON content on top of DefaultConfig. JSON may carry
// comments and trailing commas.
func Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal(jsonc.ToJSON([]byte(trimmed)), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode config: %w", decodeErr)
	}
	return finish(cfg)
}

func ParseTOML(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, errors.New("config file is empty")
	}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	default:
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Registry.Source == "" {
		cfg.Registry.Source = RegistrySourceFile
	}
	cfg.Registry.Source = strings.ToLower(cfg.Registry.Source)
	if cfg.Actuator.Param == "" {
		cfg.Actuator.Param = "open"
	}
	if cfg.Camera.PollInterval <= 0 {
		cfg.Camera.PollInterval = 100 * time.Millisecond
	}
	if cfg.Camera.Timeout <= 0 {
		cfg.Camera.Timeout = 2 * time.Second
	}
	if cfg.Events.StoreLimit <= 0 {
		cfg.Events.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.Barrier.OpenSeconds <= 0 {
		return errors.New("barrier.open_seconds must be > 0")
	}
	if cfg.Barrier.Tick <= 0 {
		return errors.New("barrier.tick must be > 0")
	}
	if cfg.Token.FreshnessSeconds <= 0 {
		return errors.New("token.freshness_seconds must be > 0")
	}
	switch cfg.Registry.Source {
	case RegistrySourceFile:
		if cfg.Registry.Path == "" {
			return errors.New("registry.path required when registry.source is file")
		}
	case RegistrySourceStorage:
		if !cfg.Storage.Enabled {
			return errors.New("registry.source storage requires storage.enabled")
		}
	default:
		return fmt.Errorf("unsupported registry.source: %q", cfg.Registry.Source)
	}
	if cfg.Actuator.URL == "" {
		return errors.New("actuator.url required")
	}
	if cfg.Actuator.Timeout <= 0 {
		return errors.New("actuator.timeout must be > 0")
	}
	if cfg.Camera.Enabled && cfg.Camera.URL == "" {
		return errors.New("camera.url required when camera.enabled is true")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Publish.Kafka.Enabled {
		if len(cfg.Publish.Kafka.Brokers) == 0 || cfg.Publish.Kafka.Topic == "" {
			return errors.New("publish.kafka requires brokers, topic")
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config; Reload and Watch are no-ops
// without a backing path.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
