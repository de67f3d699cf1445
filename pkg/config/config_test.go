package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "flat", cfg.Draw.DefaultMode)
	assert.Equal(t, 16, cfg.Draw.FlatLength)
	assert.Equal(t, 10, cfg.Draw.PartitionedLength)
	assert.Equal(t, 2, cfg.Draw.PartitionWidth)
	assert.Equal(t, "draw-events", cfg.Kafka.Topics.DrawEvents)
	assert.Equal(t, "dataset-ingest", cfg.Kafka.Topics.DatasetIngest)
	assert.Equal(t, 64, cfg.Draw.CatalogCapacity)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestTrustedProxyPrefixes(t *testing.T) {
	t.Parallel()

	s := ServerConfig{TrustedProxies: []string{"10.0.0.0/8", "192.0.2.1", "::ffff:198.51.100.7"}}
	prefixes, err := s.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.1/32", prefixes[1].String())
	assert.Equal(t, "198.51.100.7/32", prefixes[2].String())

	_, err = ServerConfig{TrustedProxies: []string{"not-an-ip"}}.TrustedProxyPrefixes()
	assert.ErrorContains(t, err, "trustedProxies")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
draw:
  defaultMode: partitioned
  partitionedLength: 12
  timeout: 2s
redis:
  cacheTTL: 30s
`), 0o600))

	t.Setenv("AP_SERVER_PORT", "9100")
	t.Setenv("AP_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AP_DRAW_TIMEOUT", "750ms")
	t.Setenv("AP_SERVER_TRUSTED_PROXIES", "10.0.0.1,10.0.0.2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env wins over file")
	assert.Equal(t, "partitioned", cfg.Draw.DefaultMode)
	assert.Equal(t, 12, cfg.Draw.PartitionedLength)
	assert.Equal(t, 16, cfg.Draw.FlatLength, "unset keys keep defaults")
	assert.Equal(t, 750*time.Millisecond, cfg.Draw.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Server.TrustedProxies)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("draw:\n  defaultMode: spiral\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "defaultMode")

	proxies := filepath.Join(dir, "proxies.yaml")
	require.NoError(t, os.WriteFile(proxies, []byte("server:\n  trustedProxies: [\"10.0.0.0/33\"]\n"), 0o600))
	_, err = Load(proxies)
	require.ErrorContains(t, err, "trustedProxies")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	t.Parallel()

	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}
