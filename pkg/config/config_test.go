package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/dataflow/pkg/errors"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_TOML(t *testing.T) {
	path := write(t, "dataflow.toml", `
[log]
level = "debug"

[pool]
workers = 4

[cache]
backend = "redis"
ttl = "1h"

[cache.redis]
addr = "localhost:6379"
db = 2
retries = 3
retry_delay = "10ms"

[server]
shutdown_timeout = "10s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 4, cfg.Pool.Workers)
	require.Equal(t, "redis", cfg.Cache.Backend)
	require.Equal(t, Duration(time.Hour), cfg.Cache.TTL)
	require.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3, cfg.Cache.Redis.Retries)
	require.Equal(t, Duration(10*time.Millisecond), cfg.Cache.Redis.RetryDelay)
	require.Equal(t, Duration(10*time.Second), cfg.Server.ShutdownTimeout)

	// Untouched sections keep their defaults.
	require.Equal(t, "localhost:8080", cfg.Server.Addr)
	require.True(t, cfg.GPU.Enabled)
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "dataflow.yaml", `
pool:
  workers: 2
gpu:
  enabled: false
  memory_limit: 1048576
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Pool.Workers)
	require.False(t, cfg.GPU.Enabled)
	require.EqualValues(t, 1<<20, cfg.GPU.MemoryLimit)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"bad level", "c.toml", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"negative workers", "c.yaml", "pool:\n  workers: -1\n", "pool.workers"},
		{"unknown toml key", "c.toml", "[pool]\nthreads = 3\n", "unknown key"},
		{"unknown yaml key", "c.yml", "pool:\n  threads: 3\n", "threads"},
		{"redis without addr", "c.toml", "[cache]\nbackend = \"redis\"\n", "redis.addr"},
		{"file without dir", "c.toml", "[cache]\ndir = \"\"\n", "cache.dir"},
		{"bad address", "c.toml", "[server]\naddr = \"nowhere\"\n", "server.addr"},
		{"bad duration", "c.toml", "[cache]\nttl = \"soon\"\n", "parse"},
		{"unknown format", "c.json", "{}", "unsupported config format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.file, tt.content))
			require.Error(t, err)
			require.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "err = %v", err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestLoadPipeline(t *testing.T) {
	path := write(t, "blur.toml", `
[[processors]]
id = "Noise"
type = "noise"
params = { width = 32, height = 16, seed = 7 }

[[processors]]
id = "Blur"
type = "blur"
params = { radius = 2 }

[[connections]]
from = "Noise.outport"
to = "Blur.inport"
`)
	p, err := LoadPipeline(path)
	require.NoError(t, err)
	require.Len(t, p.Processors, 2)
	require.Equal(t, "blur", p.Processors[1].Type)

	w, err := Params(p.Processors[0].Params).Int("width", 0)
	require.NoError(t, err)
	require.Equal(t, 32, w)

	proc, port, err := Endpoint(p.Connections[0].To)
	require.NoError(t, err)
	require.Equal(t, "Blur", proc)
	require.Equal(t, "inport", port)
}

func TestPipeline_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    Pipeline
		want string
	}{
		{"empty", Pipeline{}, "processors"},
		{"missing type", Pipeline{Processors: []ProcessorSpec{{ID: "A"}}}, "type"},
		{"duplicate id", Pipeline{Processors: []ProcessorSpec{{ID: "A", Type: "noise"}, {ID: "A", Type: "noise"}}}, "defined twice"},
		{
			"unknown processor",
			Pipeline{
				Processors:  []ProcessorSpec{{ID: "A", Type: "noise"}},
				Connections: []ConnectionSpec{{From: "A.outport", To: "B.inport"}},
			},
			`unknown processor "B"`,
		},
		{
			"bad endpoint",
			Pipeline{
				Processors:  []ProcessorSpec{{ID: "A", Type: "noise"}},
				Connections: []ConnectionSpec{{From: "A", To: "A.inport"}},
			},
			"processor.port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "err = %v", err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParams(t *testing.T) {
	p := Params{"a": int64(3), "b": 2, "c": 1.5, "d": "x", "e": 2.0}

	n, err := p.Int("a", 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = p.Int("e", 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = p.Int("c", 0)
	require.Error(t, err)

	f, err := p.Float("b", 0)
	require.NoError(t, err)
	require.Equal(t, 2.0, f)

	s, err := p.String("missing", "def")
	require.NoError(t, err)
	require.Equal(t, "def", s)

	_, err = p.String("a", "")
	require.True(t, strings.Contains(err.Error(), "want string"))
}
