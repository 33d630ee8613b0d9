package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"poisonchallenge/boss_tracker"
	"poisonchallenge/challenge"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"gopkg.in/yaml.v2"
)

var ErrInvalidSettings = errors.New("invalid settings")

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "config"))

// BossArea overrides the rewards granted in one map cell
type BossArea struct {
	X      int      `yaml:"x"`
	Y      int      `yaml:"y"`
	Bosses []string `yaml:"bosses"`
}

// Settings defines the structure for configuration options
type Settings struct {
	ProcessName    string     `yaml:"processName"`
	TickIntervalMs int        `yaml:"tickIntervalMs"`
	PoisonSentinel float64    `yaml:"poisonSentinel"`
	HitThreshold   float64    `yaml:"hitThreshold"`
	PointerSize    int        `yaml:"pointerSize"` // 0 detects it from the executable
	OffsetsFile    string     `yaml:"offsetsFile,omitempty"`
	Debug          bool       `yaml:"debug"`
	BossAreas      []BossArea `yaml:"bossAreas,omitempty"`
}

// defaultSettings provides default values for settings
var defaultSettings = Settings{
	ProcessName:    "MomodoraRUtM.exe",
	TickIntervalMs: 15,
	PoisonSentinel: 500,
	HitThreshold:   1,
}

func Default() Settings {
	return defaultSettings
}

// LoadConfig loads settings from a YAML file, creating the file with defaults if it doesn't exist.
// Keys missing from the file keep their defaults.
func LoadConfig(filePath string) (*Settings, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		err := createDefaultConfig(filePath)
		if err != nil {
			return nil, err
		}
		log.Infoln("Created default config file at", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := defaultSettings
	decoder := yaml.NewDecoder(file)
	decoder.SetStrict(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return &config, nil
}

// createDefaultConfig creates a config file with default settings
func createDefaultConfig(filePath string) error {
	data, err := yaml.Marshal(&defaultSettings)
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0644)
}

func (s *Settings) Validate() error {
	if s.ProcessName == "" {
		return fmt.Errorf("%w: processName is empty", ErrInvalidSettings)
	}
	if s.TickIntervalMs <= 0 {
		return fmt.Errorf("%w: tickIntervalMs must be positive, got %d", ErrInvalidSettings, s.TickIntervalMs)
	}
	// Small sentinels run out between ticks and the poison ends.
	if s.PoisonSentinel < 100 {
		return fmt.Errorf("%w: poisonSentinel must be at least 100, got %v", ErrInvalidSettings, s.PoisonSentinel)
	}
	if s.HitThreshold < 0 {
		return fmt.Errorf("%w: hitThreshold must not be negative, got %v", ErrInvalidSettings, s.HitThreshold)
	}
	switch s.PointerSize {
	case 0, 4, 8:
	default:
		return fmt.Errorf("%w: pointerSize must be 0, 4 or 8, got %d", ErrInvalidSettings, s.PointerSize)
	}

	seen := make(map[boss_tracker.Coordinate]bool)
	for _, area := range s.BossAreas {
		c := boss_tracker.Coordinate{X: area.X, Y: area.Y}
		if seen[c] {
			return fmt.Errorf("%w: boss area (%d, %d) listed twice", ErrInvalidSettings, area.X, area.Y)
		}
		if len(area.Bosses) == 0 {
			return fmt.Errorf("%w: boss area (%d, %d) has no bosses", ErrInvalidSettings, area.X, area.Y)
		}
		seen[c] = true
	}
	return nil
}

func (s *Settings) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

func (s *Settings) Challenge() challenge.Settings {
	return challenge.Settings{
		PoisonSentinel: s.PoisonSentinel,
		HitThreshold:   s.HitThreshold,
	}
}

// Lookup returns the configured boss areas, or the built-in rooms when none are set.
func (s *Settings) Lookup() boss_tracker.Lookup {
	if len(s.BossAreas) == 0 {
		return boss_tracker.DefaultLookup()
	}
	lookup := make(boss_tracker.Lookup, len(s.BossAreas))
	for _, area := range s.BossAreas {
		lookup[boss_tracker.Coordinate{X: area.X, Y: area.Y}] = append([]string(nil), area.Bosses...)
	}
	return lookup
}
