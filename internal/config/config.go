package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/g960059/maptime/internal/model"
)

// EnvConfigPath names the YAML overlay file when Load gets no path.
const EnvConfigPath = "MAPTIME_CONFIG"

type Config struct {
	DBPath  string        `yaml:"db_path"`
	MapID   string        `yaml:"map_id"`
	Service ServiceConfig `yaml:"service"`

	RangeDebounce       time.Duration `yaml:"range_debounce"`
	SnapThrottle        time.Duration `yaml:"snap_throttle"`
	RangeDataWorkers    int           `yaml:"range_data_workers"`
	HistogramBuckets    int           `yaml:"histogram_buckets"`
	NotificationTimeout time.Duration `yaml:"notification_timeout"`
	ActionBuffer        int           `yaml:"action_buffer"`

	Playback model.PlaybackSettings `yaml:"playback"`
	Timeline model.TimelineSettings `yaml:"timeline"`
}

type ServiceConfig struct {
	URL            string        `yaml:"url"`
	Version        string        `yaml:"version"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PreferJSON     bool          `yaml:"prefer_json"`
}

func DefaultConfig() Config {
	return Config{
		DBPath: defaultDBPath(),
		MapID:  "default",
		Service: ServiceConfig{
			Version:        "1.0.0",
			RequestTimeout: 10 * time.Second,
		},
		RangeDebounce:       400 * time.Millisecond,
		SnapThrottle:        100 * time.Millisecond,
		RangeDataWorkers:    4,
		HistogramBuckets:    50,
		NotificationTimeout: 5 * time.Second,
		ActionBuffer:        256,
		Playback: model.PlaybackSettings{
			TimeStep:      1,
			StepUnit:      model.UnitDays,
			FrameDuration: 5 * time.Second,
			Following:     true,
		},
		Timeline: model.TimelineSettings{
			AutoSelect:  true,
			SnapType:    model.SnapStart,
			ExpandLimit: 20,
		},
	}
}

// Load returns DefaultConfig overlaid with the YAML file at path, or at
// $MAPTIME_CONFIG when path is empty. No file means defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.RangeDebounce <= 0 {
		errs = append(errs, errors.New("range_debounce must be positive"))
	}
	if c.SnapThrottle <= 0 {
		errs = append(errs, errors.New("snap_throttle must be positive"))
	}
	if c.Service.RequestTimeout <= 0 {
		errs = append(errs, errors.New("service.request_timeout must be positive"))
	}
	if c.RangeDataWorkers <= 0 {
		errs = append(errs, errors.New("range_data_workers must be positive"))
	}
	if c.Playback.FrameDuration <= 0 {
		errs = append(errs, errors.New("playback.frame_duration must be positive"))
	}
	if c.Playback.StepUnit != "" && !model.ValidStepUnit(c.Playback.StepUnit) {
		errs = append(errs, fmt.Errorf("playback.step_unit %q is not supported", c.Playback.StepUnit))
	}
	switch c.Timeline.SnapType {
	case model.SnapStart, model.SnapEnd:
	default:
		errs = append(errs, fmt.Errorf("timeline.snap_type %q must be start or end", c.Timeline.SnapType))
	}
	if c.Timeline.ExpandLimit <= 0 {
		errs = append(errs, errors.New("timeline.expand_limit must be positive"))
	}
	return errors.Join(errs...)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "maptime.db"
	}
	return filepath.Join(home, ".local", "state", "maptime", "maps.db")
}
