package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4jURI)
	assert.Equal(t, "kgas.db", cfg.SQLitePath)
	assert.Equal(t, 8, cfg.TxnMaxConcurrent)
	assert.Equal(t, 0.85, cfg.AnalyticsDamping)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TXN_MAX_CONCURRENT", "2")
	t.Setenv("TXN_TIMEOUT_MS", "1500")
	t.Setenv("EXTRACTION_CONFIDENCE_MIN", "0.8")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.TxnMaxConcurrent)
	assert.Equal(t, "1.5s", cfg.TxnTimeout().String())
	assert.Equal(t, 0.8, cfg.ExtractionConfidenceMin)
	assert.True(t, cfg.IsProduction())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing neo4j uri", func(c *Config) { c.Neo4jURI = "" }, "NEO4J_URI"},
		{"missing sqlite path", func(c *Config) { c.SQLitePath = "" }, "SQLITE_PATH"},
		{"zero txn slots", func(c *Config) { c.TxnMaxConcurrent = 0 }, "TXN_MAX_CONCURRENT"},
		{"damping out of range", func(c *Config) { c.AnalyticsDamping = 1.0 }, "ANALYTICS_DAMPING"},
		{"confidence out of range", func(c *Config) { c.ExtractionConfidenceMin = 1.5 }, "EXTRACTION_CONFIDENCE_MIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
