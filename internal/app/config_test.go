package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STOCKPLUS_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 2*time.Second, cfg.SalesLockTimeout)
	require.Equal(t, 3, cfg.SalesTxRetries)
	require.Equal(t, 2, cfg.SalesCheckoutAttempts)
	require.Equal(t, 5, cfg.InvoiceMaxAttempts)
	require.Empty(t, cfg.KafkaBrokers)
	require.False(t, cfg.PGAutoMigrate)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SALES_TX_RETRIES=7\nKAFKA_BROKERS=k1:9092,k2:9092\n"), 0o600))
	t.Setenv("STOCKPLUS_ENV_FILE", path)
	t.Cleanup(func() {
		_ = os.Unsetenv("SALES_TX_RETRIES")
		_ = os.Unsetenv("KAFKA_BROKERS")
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.SalesTxRetries)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadConfigRejectsZeroRetries(t *testing.T) {
	t.Setenv("STOCKPLUS_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SALES_TX_RETRIES", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}
