package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: "localhost"
  name: "faceattend"
  user: "fa"
  password: "fa"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.SampleQuota != 25 {
		t.Errorf("SampleQuota = %d, want 25", cfg.Engine.SampleQuota)
	}
	if cfg.Engine.SampleInterval.Std() != 300*time.Millisecond {
		t.Errorf("SampleInterval = %v, want 300ms", cfg.Engine.SampleInterval)
	}
	if cfg.Engine.DistanceThreshold != 0.6 {
		t.Errorf("DistanceThreshold = %v, want 0.6", cfg.Engine.DistanceThreshold)
	}
	if cfg.Engine.HoldDuration.Std() != 5*time.Second {
		t.Errorf("HoldDuration = %v, want 5s", cfg.Engine.HoldDuration)
	}
	if cfg.Engine.PollInterval.Std() != 80*time.Millisecond {
		t.Errorf("PollInterval = %v, want 80ms", cfg.Engine.PollInterval)
	}
	if cfg.Engine.FaceSize != 200 {
		t.Errorf("FaceSize = %d, want 200", cfg.Engine.FaceSize)
	}
	if cfg.Station.ID != "station-1" {
		t.Errorf("Station.ID = %q, want station-1", cfg.Station.ID)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  sample_quota: 10
  sample_interval: 500ms
  distance_threshold: 0.4
camera:
  device: "/dev/video2"
  fps: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.SampleQuota != 10 {
		t.Errorf("SampleQuota = %d, want 10", cfg.Engine.SampleQuota)
	}
	if cfg.Engine.SampleInterval.Std() != 500*time.Millisecond {
		t.Errorf("SampleInterval = %v, want 500ms", cfg.Engine.SampleInterval)
	}
	if cfg.Engine.DistanceThreshold != 0.4 {
		t.Errorf("DistanceThreshold = %v, want 0.4", cfg.Engine.DistanceThreshold)
	}
	if cfg.Camera.Device != "/dev/video2" || cfg.Camera.FPS != 30 {
		t.Errorf("Camera = %+v, want /dev/video2 at 30fps", cfg.Camera)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FA_STATION_ID", "gate-7")
	t.Setenv("FA_DB_HOST", "db.internal")
	t.Setenv("FA_CAMERA_DEVICE", "/dev/video1")

	cfg, err := Load(writeConfig(t, `station: {id: "station-1"}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Station.ID != "gate-7" {
		t.Errorf("Station.ID = %q, want env override gate-7", cfg.Station.ID)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Camera.Device != "/dev/video1" {
		t.Errorf("Camera.Device = %q, want /dev/video1", cfg.Camera.Device)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "localhost", Port: 5432, Name: "fa", User: "u", Password: "p"}
	want := "postgres://u:p@localhost:5432/fa?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing config file must fail")
	}
}
