package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30, cfg.Voting.SplitThreshold)
	assert.Equal(t, 2, cfg.Voting.SplitFactor)
	assert.False(t, cfg.Voting.AllowVoteModification)
	assert.Equal(t, 12*time.Hour, cfg.Voting.BallotValidityMin)
	assert.Equal(t, 24*time.Hour, cfg.Voting.BallotValidityMax)
	assert.Equal(t, time.Hour, cfg.Voting.RequestBlockMin)
	assert.Equal(t, 12*time.Hour, cfg.Voting.RequestBlockMax)
	assert.Equal(t, 1000, cfg.Voting.BallotNumberFloor)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "voting.vote-recorded", cfg.Kafka.VoteTopic)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"AGORA_ADDR":                    ":9090",
		"AGORA_DATABASE_URL":            "postgres://agora@localhost/agora",
		"AGORA_KAFKA_BROKERS":           "k1:9092, k2:9092,,",
		"AGORA_SPLIT_THRESHOLD":         "50",
		"AGORA_ALLOW_VOTE_MODIFICATION": "true",
		"AGORA_BALLOT_VALIDITY_MAX":     "36h",
		"AGORA_TOKEN_THREADS":           "2",
		"AGORA_SWEEP_INTERVAL":          "30s",
		"AGORA_LOG_LEVEL":               "  ",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres://agora@localhost/agora", cfg.Database.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 50, cfg.Voting.SplitThreshold)
	assert.True(t, cfg.Voting.AllowVoteModification)
	assert.Equal(t, 36*time.Hour, cfg.Voting.BallotValidityMax)
	assert.Equal(t, uint8(2), cfg.Token.Threads)
	assert.Equal(t, 30*time.Second, cfg.Worker.SweepInterval)
	assert.Equal(t, "info", cfg.Logging.Level, "blank values keep the default")
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	_, err := load(lookupFrom(map[string]string{
		"AGORA_SPLIT_THRESHOLD": "thirty",
		"AGORA_SWEEP_INTERVAL":  "soon",
		"AGORA_TOKEN_THREADS":   "300",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGORA_SPLIT_THRESHOLD")
	assert.Contains(t, err.Error(), "AGORA_SWEEP_INTERVAL")
	assert.Contains(t, err.Error(), "AGORA_TOKEN_THREADS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero split threshold", func(c *Config) { c.Voting.SplitThreshold = 0 }},
		{"zero split factor", func(c *Config) { c.Voting.SplitFactor = 0 }},
		{"inverted validity window", func(c *Config) { c.Voting.BallotValidityMin = 48 * time.Hour }},
		{"inverted request block", func(c *Config) { c.Voting.RequestBlockMax = time.Minute }},
		{"missing signing key", func(c *Config) { c.Auth.JWTSigningKey = "" }},
		{"zero token threads", func(c *Config) { c.Token.Threads = 0 }},
		{"brokers without topic", func(c *Config) {
			c.Kafka.Brokers = []string{"k1:9092"}
			c.Kafka.VoteTopic = ""
		}},
		{"bucket without region", func(c *Config) {
			c.Archive.Bucket = "audits"
			c.Archive.Region = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
