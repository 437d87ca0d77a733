package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultGamePort is the well-known TankWars TCP port.
const DefaultGamePort = 11000

// Runtime holds process-level knobs that are not match rules.
type Runtime struct {
	GamePort     int
	HTTPAddr     string
	SettingsPath string
	LogFile      string
	DBPath       string
	Debug        bool
}

// DefaultRuntime returns the built-in runtime defaults.
func DefaultRuntime() Runtime {
	return Runtime{
		GamePort:     DefaultGamePort,
		HTTPAddr:     ":8080",
		SettingsPath: "settings.xml",
		LogFile:      "tankwars.log",
	}
}

// LoadEnv loads the given dotenv files (missing files are skipped) and
// applies TANKWARS_* variables over DefaultRuntime. Variables already set in
// the environment win over the files.
func LoadEnv(files ...string) (Runtime, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Runtime{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	rt := DefaultRuntime()
	if v := os.Getenv("TANKWARS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Runtime{}, fmt.Errorf("%w: TANKWARS_PORT=%q", ErrInvalidSetting, v)
		}
		rt.GamePort = port
	}
	if v, ok := os.LookupEnv("TANKWARS_HTTP_ADDR"); ok {
		rt.HTTPAddr = v
	}
	if v := os.Getenv("TANKWARS_SETTINGS"); v != "" {
		rt.SettingsPath = v
	}
	if v, ok := os.LookupEnv("TANKWARS_LOG_FILE"); ok {
		rt.LogFile = v
	}
	if v, ok := os.LookupEnv("TANKWARS_DB"); ok {
		rt.DBPath = v
	}
	if v := os.Getenv("TANKWARS_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return Runtime{}, fmt.Errorf("%w: TANKWARS_DEBUG=%q", ErrInvalidSetting, v)
		}
		rt.Debug = debug
	}
	return rt, nil
}
