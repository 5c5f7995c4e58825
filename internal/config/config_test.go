package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{
		"debug": true,
		"api": { "baseUrl": "https://collector.example", "apiKey": "k" },
		"events": { "kill": true }
	}`)

	require.NoError(t, Load(dir))

	assert.True(t, GetBool("debug"))
	assert.Equal(t, "https://collector.example", GetString("api.baseUrl"))
	assert.Equal(t, "k", GetString("api.apiKey"))
	assert.True(t, GetBool("events.kill"))
	assert.True(t, GetBool("events.connection"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{}`)
	require.NoError(t, Load(dir))

	assert.Equal(t, "http://127.0.0.1:5050", GetString("api.baseUrl"))
	assert.Equal(t, "defaultSecretKey", GetString("api.apiKey"))
	assert.Equal(t, true, GetBool("events.connection"))
	assert.Equal(t, false, GetBool("events.kill"))
	assert.Equal(t, 20, GetInt("identity.maxRetries"))
	assert.Equal(t, false, GetBool("debug"))
	assert.Equal(t, "OpsTrackLogs", GetString("logsDir"))
	assert.Equal(t, 25, GetInt("pipeline.maxBatchSize"))
	assert.Equal(t, "120s", GetString("pipeline.cooldown"))
	assert.Equal(t, "http", GetString("transport.type"))
}

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := filepath.Join(t.TempDir(), "profile")
	require.NoError(t, Load(dir))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "defaultSecretKey")
	assert.Equal(t, filepath.Join(dir, FileName), Path())
}

func TestLoad_InvalidJSON(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{not json`)

	err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestDecode_Durations(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{"pipeline": {"flushInterval": "3s"}, "mission": {"assignDelay": "500ms"}}`)
	require.NoError(t, Load(dir))

	s, err := Decode()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, s.Pipeline.FlushInterval)
	assert.Equal(t, 500*time.Millisecond, s.Mission.AssignDelay)
	assert.Equal(t, 120*time.Second, s.Pipeline.Cooldown)
	assert.Equal(t, 100*time.Millisecond, s.Identity.RetryDelay)
	assert.Equal(t, time.Second, s.Sampling.Interval)
}

func TestDecode_Maps(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{"maps": [{"worldIdentifier": "Eden", "mapName": "Everon"}]}`)
	require.NoError(t, Load(dir))

	s, err := Decode()
	require.NoError(t, err)
	require.Len(t, s.Maps, 1)
	assert.Equal(t, "Eden", s.Maps[0].WorldIdentifier)
}

func TestValidate(t *testing.T) {
	t.Run("empty base url", func(t *testing.T) {
		s := Settings{}
		_, err := s.Validate()
		assert.ErrorIs(t, err, ErrNoBaseURL)
	})

	t.Run("empty api key warns", func(t *testing.T) {
		s := Settings{API: APIConfig{BaseURL: "http://x"}}
		warnings, err := s.Validate()
		require.NoError(t, err)
		assert.Contains(t, warnings, "api.apiKey is empty")
	})

	t.Run("clamps max retries", func(t *testing.T) {
		s := Settings{API: APIConfig{BaseURL: "http://x", APIKey: "k"}}
		s.Identity.MaxRetries = 500
		_, err := s.Validate()
		require.NoError(t, err)
		assert.Equal(t, MaxRetriesCeiling, s.Identity.MaxRetries)

		s.Identity.MaxRetries = -3
		_, err = s.Validate()
		require.NoError(t, err)
		assert.Equal(t, 0, s.Identity.MaxRetries)
	})

	t.Run("fills pipeline floors", func(t *testing.T) {
		s := Settings{API: APIConfig{BaseURL: "http://x", APIKey: "k"}}
		_, err := s.Validate()
		require.NoError(t, err)
		assert.Equal(t, 1, s.Pipeline.MaxBatchSize)
		assert.Equal(t, 1, s.Pipeline.MinStatesPerFlush)
		assert.Equal(t, 1, s.Pipeline.MaxStatesPerFlush)
		assert.Equal(t, time.Second, s.Pipeline.FlushInterval)
		assert.Equal(t, 120*time.Second, s.Pipeline.Cooldown)
	})
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "h", Port: "1", Username: "u", Password: "p", Database: "d"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=d sslmode=disable", c.DSN())
}

func TestStore_UpdateBumpsVersion(t *testing.T) {
	st := NewStore(Settings{LogLevel: "info"})
	assert.Equal(t, uint64(1), st.Version())

	var seen []uint64
	st.Subscribe(func(s *Snapshot) { seen = append(seen, s.Version) })

	old := st.Current()
	next := st.Update(Settings{LogLevel: "debug"})

	assert.Equal(t, uint64(2), next.Version)
	assert.Equal(t, "debug", st.Settings().LogLevel)
	assert.Equal(t, "info", old.Settings.LogLevel, "old snapshots are immutable")
	assert.Equal(t, []uint64{2}, seen)
}

func TestStore_Reload(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := writeConfig(t, dir, `{"events": {"kill": false}}`)
	require.NoError(t, Load(dir))

	s, err := Decode()
	require.NoError(t, err)
	st := NewStore(s)

	require.NoError(t, os.WriteFile(path, []byte(`{"events": {"kill": true}, "identity": {"maxRetries": 999}}`), 0644))

	snap, warnings, err := st.Reload()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
	assert.True(t, st.Settings().Events.Kill)
	assert.Equal(t, MaxRetriesCeiling, st.Settings().Identity.MaxRetries)
	assert.NotEmpty(t, warnings)
}

func TestStore_ReloadKeepsSnapshotOnError(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := writeConfig(t, dir, `{}`)
	require.NoError(t, Load(dir))
	s, err := Decode()
	require.NoError(t, err)
	st := NewStore(s)

	require.NoError(t, os.WriteFile(path, []byte(`{"api": {"baseUrl": ""}}`), 0644))

	_, _, err = st.Reload()
	assert.ErrorIs(t, err, ErrNoBaseURL)
	assert.Equal(t, uint64(1), st.Version())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := writeConfig(t, dir, `{}`)
	require.NoError(t, Load(dir))
	s, err := Decode()
	require.NoError(t, err)
	st := NewStore(s)

	w, err := NewWatcher(st, path, nil)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, os.WriteFile(path, []byte(`{"debug": true}`), 0644))

	assert.Eventually(t, func() bool { return st.Settings().Debug }, 2*time.Second, 10*time.Millisecond)
}
