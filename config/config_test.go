package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleSettings = `<?xml version="1.0" encoding="utf-8" ?>
<GameSettings>
  <UniverseSize>2000</UniverseSize>
  <MSPerFrame>17</MSPerFrame>
  <FramesPerShot>80</FramesPerShot>
  <RespawnRate>300</RespawnRate>
  <TankSpeed>2.9</TankSpeed>
  <Wall>
    <p1><x>-975</x><y>-975</y></p1>
    <p2><x>975</x><y>-975</y></p2>
  </Wall>
  <Wall>
    <p1><x>-975</x><y>-975</y></p1>
    <p2><x>-975</x><y>975</y></p2>
  </Wall>
</GameSettings>`

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.UniverseSize != 2000 {
		t.Errorf("expected universe 2000, got %d", s.UniverseSize)
	}
	if s.TankSpeed != 2.9 {
		t.Errorf("expected tank speed 2.9, got %v", s.TankSpeed)
	}
	// absent elements keep defaults
	if s.TankHP != DefaultSettings().TankHP {
		t.Errorf("expected default hp, got %d", s.TankHP)
	}
	if len(s.Walls) != 2 {
		t.Fatalf("expected 2 walls, got %d", len(s.Walls))
	}
	if s.Walls[1].P2.Y != 975 {
		t.Errorf("wall 1 p2.y = %v, want 975", s.Walls[1].P2.Y)
	}
	if s.FrameInterval().Milliseconds() != 17 {
		t.Errorf("frame interval = %v", s.FrameInterval())
	}
}

func TestParseSettingsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "garbage"},
		{"unknown element", `<GameSettings><Gravity>9</Gravity></GameSettings>`},
		{"zero size", `<GameSettings><UniverseSize>0</UniverseSize></GameSettings>`},
		{"negative speed", `<GameSettings><ProjectileSpeed>-1</ProjectileSpeed></GameSettings>`},
		{"nan size", `<GameSettings><TankSize>NaN</TankSize></GameSettings>`},
		{"infinite speed", `<GameSettings><TankSpeed>+Inf</TankSpeed></GameSettings>`},
		{"wall outside world", `<GameSettings><Wall><p1><x>0</x><y>0</y></p1><p2><x>1e12</x><y>0</y></p2></Wall></GameSettings>`},
		{"diagonal wall", `<GameSettings><Wall><p1><x>0</x><y>0</y></p1><p2><x>5</x><y>5</y></p2></Wall></GameSettings>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.doc))
			if !errors.Is(err, ErrInvalidSetting) {
				t.Errorf("expected ErrInvalidSetting, got %v", err)
			}
		})
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.xml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	content := "TANKWARS_PORT=12000\nTANKWARS_DB=" + filepath.Join(dir, "scores.db") + "\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TANKWARS_PORT", "")
	os.Unsetenv("TANKWARS_PORT")
	t.Setenv("TANKWARS_DB", "")
	os.Unsetenv("TANKWARS_DB")
	t.Setenv("TANKWARS_HTTP_ADDR", "127.0.0.1:0")

	rt, err := LoadEnv(envFile, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if rt.GamePort != 12000 {
		t.Errorf("expected port 12000, got %d", rt.GamePort)
	}
	if rt.HTTPAddr != "127.0.0.1:0" {
		t.Errorf("env should win, got %q", rt.HTTPAddr)
	}
	if rt.DBPath == "" {
		t.Error("expected DB path from env file")
	}
}

func TestLoadEnvBadPort(t *testing.T) {
	t.Setenv("TANKWARS_PORT", "not-a-port")
	_, err := LoadEnv(filepath.Join(t.TempDir(), "none.env"))
	if !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("expected ErrInvalidSetting, got %v", err)
	}
}

func TestWallAtWorldEdgeAccepted(t *testing.T) {
	doc := `<GameSettings><Wall><p1><x>-625</x><y>-625</y></p1><p2><x>625</x><y>-625</y></p2></Wall></GameSettings>`
	if _, err := ParseSettings([]byte(doc)); err != nil {
		t.Errorf("wall within the padded world edge rejected: %v", err)
	}
}
