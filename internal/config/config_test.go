package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRuntimeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWhenRuntimeFileMissing(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	rt := cfg.Runtime()
	assert.Equal(t, 10, rt.ConcurrencyScout)
	assert.True(t, rt.RarityEnabled)
	assert.True(t, rt.FilterWithKoji)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")
	path := writeRuntimeYAML(t, `
priority_list: ["25", "150:0"]
concurrency_scout: 3
filter_with_koji: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	rt := cfg.Runtime()
	assert.Equal(t, []string{"25", "150:0"}, rt.PriorityList)
	assert.Equal(t, 3, rt.ConcurrencyScout)
	assert.False(t, rt.FilterWithKoji)
}

func TestLoad_EnvVarsPopulateRestartOnlyFields(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("ALLOWED_IPS", "10.0.0.1, 10.0.0.2")
	t.Setenv("MQTT_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Security.AllowedIPs)
	assert.True(t, cfg.MQTT.Enabled)
}

func TestLoad_HeaderAuthParsed(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")
	t.Setenv("HEADER_AUTH", "X-Admin-Token: secret123")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "X-Admin-Token", cfg.Security.HeaderName)
	assert.Equal(t, "secret123", cfg.Security.HeaderValue)
}

func TestLoad_MalformedHeaderAuthRejected(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")
	t.Setenv("HEADER_AUTH", "no-colon-here")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingServerAddressFailsValidate(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestReload_SwapsRuntimeAtomically(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")
	path := writeRuntimeYAML(t, `concurrency_scout: 2`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Runtime().ConcurrencyScout)

	require.NoError(t, os.WriteFile(path, []byte(`concurrency_scout: 7`), 0o644))

	next, err := cfg.Reload()
	require.NoError(t, err)
	assert.Equal(t, 7, next.ConcurrencyScout)
	assert.Equal(t, 7, cfg.Runtime().ConcurrencyScout)
}

func TestValidate_RejectsNonPositiveConcurrency(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")
	path := writeRuntimeYAML(t, `concurrency_scout: 0`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestPriorityListPositions_FirstOccurrenceWins(t *testing.T) {
	rt := &Runtime{PriorityList: []string{"25", "150", "25"}}
	positions := rt.PriorityListPositions()
	assert.Equal(t, 0, positions["25"])
	assert.Equal(t, 1, positions["150"])
}

func TestLoad_YAMLBareIntegerDurationsAreSeconds(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")
	path := writeRuntimeYAML(t, `
timeout_iv: 90
ranking_interval_seconds: 120
cleanup_interval_seconds: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	rt := cfg.Runtime()
	assert.Equal(t, 90*time.Second, rt.TimeoutIV.Duration())
	assert.Equal(t, 120*time.Second, rt.RankingInterval.Duration())
	assert.Equal(t, 30*time.Second, rt.CleanupInterval.Duration())
}

func TestLoad_YAMLDurationStringsAreAlsoAccepted(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")
	path := writeRuntimeYAML(t, `timeout_iv: 2m`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Runtime().TimeoutIV.Duration())
}

func TestLoad_YAMLMalformedDurationStringRejected(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":8090")
	path := writeRuntimeYAML(t, `timeout_iv: "not-a-duration"`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestGetDuration_AcceptsBareSecondsAndDurationStrings(t *testing.T) {
	t.Setenv("SCOUT_TIMEOUT", "45")
	assert.Equal(t, 45*time.Second, getDuration("SCOUT_TIMEOUT", time.Minute))

	t.Setenv("SCOUT_TIMEOUT", "2m")
	assert.Equal(t, 2*time.Minute, getDuration("SCOUT_TIMEOUT", time.Minute))
}
