package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/linkage/pkg/sweep"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[solver]
accurate = true
backend = "lbfgs"

[sweep]
end = 90
step = 2.5
spline_soft = true

[cache]
backend = "redis"
redis_addr = "cache:6379"
ttl = "90m"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Solver.Accurate || cfg.Solver.Backend != "lbfgs" {
		t.Errorf("solver = %+v", cfg.Solver)
	}
	if cfg.Sweep.End != 90 || cfg.Sweep.Step != 2.5 || !cfg.Sweep.SplineSoft {
		t.Errorf("sweep = %+v", cfg.Sweep)
	}
	if cfg.Sweep.Solver != sweep.DefaultSolver {
		t.Errorf("sweep solver = %q, want the default kept", cfg.Sweep.Solver)
	}
	if cfg.Cache.Backend != CacheRedis || cfg.Cache.RedisAddr != "cache:6379" || cfg.Cache.TTL.Duration != 90*time.Minute {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Store.Backend != StoreFile || cfg.Server.Addr != ":8080" {
		t.Errorf("untouched sections lost their defaults: %+v %+v", cfg.Store, cfg.Server)
	}
}

func TestLoadMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("missing default file: %v", err)
	}
	if cfg.Cache.Backend != CacheFile {
		t.Errorf("cache backend = %q, want default", cfg.Cache.Backend)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("missing explicit file should fail")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "[cache\n", "parse config"},
		{"cache backend", "[cache]\nbackend = \"memcached\"\n", "cache backend"},
		{"mongo without uri", "[store]\nbackend = \"mongo\"\n", "uri"},
		{"sweep solver", "[sweep]\nsolver = \"newton\"\n", "newton"},
		{"bad ttl", "[cache]\nttl = \"soon\"\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDirs(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xc")
	t.Setenv("XDG_DATA_HOME", "/tmp/xd")
	cfg := Default()
	if dir, _ := cfg.CacheDir(); dir != filepath.Join("/tmp/xc", AppName) {
		t.Errorf("CacheDir = %q", dir)
	}
	if dir, _ := cfg.DataDir(); dir != filepath.Join("/tmp/xd", AppName) {
		t.Errorf("DataDir = %q", dir)
	}
	cfg.Cache.Dir = "/srv/cache"
	if dir, _ := cfg.CacheDir(); dir != "/srv/cache" {
		t.Errorf("explicit CacheDir = %q", dir)
	}
}
