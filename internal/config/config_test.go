package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Server.SessionIdleMins)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 1, cfg.Fetch.MaxRetries)
	assert.Equal(t, "student-map/1.0", cfg.Fetch.UserAgent)
	assert.InDelta(t, 20.0, cfg.Buffer.DefaultRadiusMiles, 0.001)
	assert.Equal(t, "students_in_buffer.csv", cfg.Export.Filename)
	assert.Equal(t, "file", cfg.Export.Sink)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "office", cfg.Sources[0].Name)
	assert.Equal(t, "office", cfg.Sources[0].Kind)
	assert.False(t, cfg.Sources[0].IsFilterable())
	assert.Equal(t, "stripe", cfg.Sources[1].Name)
	assert.True(t, cfg.Sources[1].IsFilterable())
	assert.Equal(t, "1NUYtyLyPppreqoFPRfinCphl8u_6Fv6t95s--6LMT0Y", cfg.Sources[2].SheetID)

	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
sources:
  - name: campus
    label: Campus Students
    kind: student
    url: https://example.com/students.csv
    lat_column: lat
    lon_column: lng
  - name: hq
    label: HQ
    kind: office
    path: offices.xlsx
    filterable: true
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
buffer:
  default_radius_miles: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 5.0, cfg.Buffer.DefaultRadiusMiles, 0.001)

	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "lat", cfg.Sources[0].LatColumn)
	assert.Equal(t, "lng", cfg.Sources[0].LonColumn)
	assert.True(t, cfg.Sources[0].IsFilterable())
	assert.True(t, cfg.Sources[1].IsFilterable())

	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.NoError(t, cfg.Validate("load"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("STUDENTMAP_STORE_DRIVER", "postgres")
	t.Setenv("STUDENTMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("STUDENTMAP_SERVER_PORT", "3000")
	t.Setenv("STUDENTMAP_BUFFER_DEFAULT_RADIUS_MILES", "12.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 12.5, cfg.Buffer.DefaultRadiusMiles, 0.001)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("sources: [\n"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Sources = []SourceConfig{
		{Name: "office", Kind: "office", SheetID: "a"},
		{Name: "stripe", Kind: "student", SheetID: "b"},
	}
	cfg.Store.Driver = "none"
	cfg.Export.Sink = "file"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateSources(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources = append(cfg.Sources,
		SourceConfig{Name: "stripe", Kind: "student", URL: "https://x"},
		SourceConfig{Name: "bad-kind", Kind: "instructor", Path: "x.csv"},
		SourceConfig{Name: "two-locations", Kind: "student", SheetID: "a", URL: "https://x"},
		SourceConfig{Kind: "student", SheetID: "a"},
	)

	err := cfg.Validate("load")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicates name "stripe"`)
	assert.Contains(t, err.Error(), `source "bad-kind" kind must be student or office`)
	assert.Contains(t, err.Error(), `source "two-locations" must set exactly one of sheet_id, url, path`)
	assert.Contains(t, err.Error(), "sources[5].name is required")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("load")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/studentmap"
	assert.NoError(t, cfg.Validate("load"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("load")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" is not supported`)
}

func TestValidateBufferSink(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("buffer"))

	cfg.Export.Sink = "s3"
	err := cfg.Validate("buffer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export.s3.endpoint and export.s3.bucket are required")

	cfg.Export.S3.Endpoint = "localhost:9000"
	cfg.Export.S3.Bucket = "exports"
	assert.NoError(t, cfg.Validate("buffer"))

	cfg.Export.Sink = "ftp"
	err = cfg.Validate("buffer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `export.sink "ftp" is not supported`)
}

func TestIsFilterable(t *testing.T) {
	no := false
	assert.True(t, SourceConfig{Kind: "student"}.IsFilterable())
	assert.False(t, SourceConfig{Kind: "office"}.IsFilterable())
	assert.False(t, SourceConfig{Kind: "student", Filterable: &no}.IsFilterable())
}
