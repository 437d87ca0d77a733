package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// ErrInvalidSetting is wrapped by every validation failure.
var ErrInvalidSetting = errors.New("invalid setting")

// Point is a wall endpoint as written in the settings file.
type Point struct {
	X float64 `xml:"x"`
	Y float64 `xml:"y"`
}

// WallSetting is one <Wall> element.
type WallSetting struct {
	P1 Point `xml:"p1"`
	P2 Point `xml:"p2"`
}

// Settings are the match rules loaded at startup. Tick-based fields count
// frames, not wall-clock time.
type Settings struct {
	UniverseSize       int
	MSPerFrame         int
	FramesPerShot      int
	RespawnRate        int
	TankHP             int
	ProjectileSpeed    float64
	TankSpeed          float64
	TankSize           float64
	WallSize           float64
	NumberOfPowerups   int
	PowerupRespawnRate int
	MaxPowerupCharges  int // 0 means unlimited
	MaxCommandsPerTick int
	Walls              []WallSetting
}

// DefaultSettings mirrors the stock TankWars settings.
func DefaultSettings() Settings {
	return Settings{
		UniverseSize:       1200,
		MSPerFrame:         17,
		FramesPerShot:      80,
		RespawnRate:        300,
		TankHP:             3,
		ProjectileSpeed:    25,
		TankSpeed:          3,
		TankSize:           60,
		WallSize:           50,
		NumberOfPowerups:   2,
		PowerupRespawnRate: 1650,
		MaxCommandsPerTick: 16,
	}
}

// FrameInterval is the wall-clock duration of one tick.
func (s Settings) FrameInterval() time.Duration {
	return time.Duration(s.MSPerFrame) * time.Millisecond
}

// xmlSettings uses pointers so absent elements keep their defaults.
type xmlSettings struct {
	XMLName            xml.Name      `xml:"GameSettings"`
	UniverseSize       *int          `xml:"UniverseSize"`
	MSPerFrame         *int          `xml:"MSPerFrame"`
	FramesPerShot      *int          `xml:"FramesPerShot"`
	RespawnRate        *int          `xml:"RespawnRate"`
	TankHP             *int          `xml:"TankHP"`
	ProjectileSpeed    *float64      `xml:"ProjectileSpeed"`
	TankSpeed          *float64      `xml:"TankSpeed"`
	TankSize           *float64      `xml:"TankSize"`
	WallSize           *float64      `xml:"WallSize"`
	NumberOfPowerups   *int          `xml:"NumberOfPowerups"`
	PowerupRespawnRate *int          `xml:"PowerupRespawnRate"`
	MaxPowerupCharges  *int          `xml:"MaxPowerupCharges"`
	MaxCommandsPerTick *int          `xml:"MaxCommandsPerTick"`
	Walls              []WallSetting `xml:"Wall"`
	Unknown            []struct {
		XMLName xml.Name
	} `xml:",any"`
}

// LoadSettings reads and validates an XML settings file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes a <GameSettings> document on top of DefaultSettings.
func ParseSettings(data []byte) (Settings, error) {
	var raw xmlSettings
	if err := xml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	if len(raw.Unknown) > 0 {
		return Settings{}, fmt.Errorf("%w: unknown element <%s>", ErrInvalidSetting, raw.Unknown[0].XMLName.Local)
	}

	s := DefaultSettings()
	setInt(&s.UniverseSize, raw.UniverseSize)
	setInt(&s.MSPerFrame, raw.MSPerFrame)
	setInt(&s.FramesPerShot, raw.FramesPerShot)
	setInt(&s.RespawnRate, raw.RespawnRate)
	setInt(&s.TankHP, raw.TankHP)
	setFloat(&s.ProjectileSpeed, raw.ProjectileSpeed)
	setFloat(&s.TankSpeed, raw.TankSpeed)
	setFloat(&s.TankSize, raw.TankSize)
	setFloat(&s.WallSize, raw.WallSize)
	setInt(&s.NumberOfPowerups, raw.NumberOfPowerups)
	setInt(&s.PowerupRespawnRate, raw.PowerupRespawnRate)
	setInt(&s.MaxPowerupCharges, raw.MaxPowerupCharges)
	setInt(&s.MaxCommandsPerTick, raw.MaxCommandsPerTick)
	s.Walls = raw.Walls

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks ranges and wall geometry.
func (s Settings) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"UniverseSize", float64(s.UniverseSize)},
		{"MSPerFrame", float64(s.MSPerFrame)},
		{"TankHP", float64(s.TankHP)},
		{"TankSize", s.TankSize},
		{"MaxCommandsPerTick", float64(s.MaxCommandsPerTick)},
	}
	for _, p := range positive {
		if !finite(p.v) || p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidSetting, p.name, p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    float64
	}{
		{"FramesPerShot", float64(s.FramesPerShot)},
		{"RespawnRate", float64(s.RespawnRate)},
		{"ProjectileSpeed", s.ProjectileSpeed},
		{"TankSpeed", s.TankSpeed},
		{"WallSize", s.WallSize},
		{"NumberOfPowerups", float64(s.NumberOfPowerups)},
		{"PowerupRespawnRate", float64(s.PowerupRespawnRate)},
		{"MaxPowerupCharges", float64(s.MaxPowerupCharges)},
	}
	for _, n := range nonNegative {
		if !finite(n.v) || n.v < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidSetting, n.name, n.v)
		}
	}

	limit := float64(s.UniverseSize)/2 + s.WallSize
	for i, w := range s.Walls {
		for _, v := range []float64{w.P1.X, w.P1.Y, w.P2.X, w.P2.Y} {
			if !finite(v) || math.Abs(v) > limit {
				return fmt.Errorf("%w: wall %d lies outside the world", ErrInvalidSetting, i)
			}
		}
		if w.P1.X != w.P2.X && w.P1.Y != w.P2.Y {
			return fmt.Errorf("%w: wall %d is neither horizontal nor vertical", ErrInvalidSetting, i)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
