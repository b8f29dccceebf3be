package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Port != 8080 {
		t.Errorf("Port: got %d, want 8080", cfg.Port)
	}
	if cfg.PGPort != 5433 {
		t.Errorf("PGPort: got %d, want 5433", cfg.PGPort)
	}
	if cfg.PGUser != "operadora" || cfg.PGPassword != "operadora" || cfg.PGDatabase != "operadora" {
		t.Errorf("PG credentials: got %s/%s/%s", cfg.PGUser, cfg.PGPassword, cfg.PGDatabase)
	}
	if cfg.CSVDir != filepath.Join("data", "csv") {
		t.Errorf("CSVDir: got %q", cfg.CSVDir)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr: got %q, want :8080", cfg.Addr())
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadFileTOML(t *testing.T) {
	path := writeConfigFile(t, "operadora.toml", "port = 9090\ncsv_dir = \"/srv/extracts\"\n")

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Port)
	}
	if cfg.CSVDir != "/srv/extracts" {
		t.Errorf("CSVDir: got %q", cfg.CSVDir)
	}
	// keys absent from the file keep their defaults
	if cfg.PGPort != 5433 {
		t.Errorf("PGPort: got %d, want default 5433", cfg.PGPort)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := writeConfigFile(t, "operadora.yml", "pg_port: 15500\npg_user: analytics\n")

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.PGPort != 15500 {
		t.Errorf("PGPort: got %d, want 15500", cfg.PGPort)
	}
	if cfg.PGUser != "analytics" {
		t.Errorf("PGUser: got %q", cfg.PGUser)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port: got %d, want default 8080", cfg.Port)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := writeConfigFile(t, "operadora.json", `{"data_dir": "/var/lib/operadora"}`)

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.DataDir != "/var/lib/operadora" {
		t.Errorf("DataDir: got %q", cfg.DataDir)
	}
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	path := writeConfigFile(t, "operadora.ini", "port=1\n")

	cfg := Default()
	if err := cfg.LoadFile(path); err == nil {
		t.Error("LoadFile should reject .ini files")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("LoadFile should fail on a missing file")
	}
}

func TestLoadFileDirectory(t *testing.T) {
	cfg := Default()
	if err := cfg.LoadFile(t.TempDir()); err == nil {
		t.Error("LoadFile should reject a directory")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("OPERADORA_PG_USER", "svc")
	t.Setenv("OPERADORA_RUNTIME_DIR", "/tmp/pg-run")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port: got %d, want 7000", cfg.Port)
	}
	if cfg.PGUser != "svc" {
		t.Errorf("PGUser: got %q, want svc", cfg.PGUser)
	}
	if cfg.RuntimeDir != "/tmp/pg-run" {
		t.Errorf("RuntimeDir: got %q", cfg.RuntimeDir)
	}
	if cfg.PGPort != 5433 {
		t.Errorf("PGPort: got %d, want default 5433", cfg.PGPort)
	}
}

func TestApplyEnvOperadoraPortWins(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("OPERADORA_PORT", "7100")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Port != 7100 {
		t.Errorf("Port: got %d, want 7100", cfg.Port)
	}
}

func TestApplyEnvInvalidInt(t *testing.T) {
	t.Setenv("OPERADORA_PG_PORT", "not-a-port")

	cfg := Default()
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("ApplyEnv should reject a non-numeric port")
	}
}
