package lease

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantheon-ai/mnemo/memory"
)

func TestNewManagerRequiresEndpoints(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}

func TestNewManagerFromEnvUnset(t *testing.T) {
	t.Setenv("MNEMO_ETCD_ENDPOINTS", "")

	mgr, err := NewManagerFromEnv()
	require.NoError(t, err)
	assert.Nil(t, mgr)
}

func TestNilManagerSingleInstanceMode(t *testing.T) {
	var mgr *Manager

	// Without coordination every persona belongs to this instance.
	for _, persona := range memory.Personas() {
		assert.True(t, mgr.Holding(persona))
	}
	assert.NoError(t, mgr.Close())
}

func TestKeyFormat(t *testing.T) {
	m := &Manager{namespace: "mnemo"}
	assert.Equal(t, "/mnemo/writer/athena", m.key(memory.PersonaAthena))

	m.namespace = "staging"
	assert.Equal(t, "/staging/writer/shared", m.key(memory.PersonaShared))
}

func TestTLSConfigValidation(t *testing.T) {
	t.Run("disabled yields nil config", func(t *testing.T) {
		cfg, err := (&TLSConfig{}).ClientConfig()
		require.NoError(t, err)
		assert.Nil(t, cfg)

		cfg, err = (*TLSConfig)(nil).ClientConfig()
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("enabled requires every path", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  TLSConfig
		}{
			{"missing cert", TLSConfig{Enabled: true, KeyFile: "k", CAFile: "ca"}},
			{"missing key", TLSConfig{Enabled: true, CertFile: "c", CAFile: "ca"}},
			{"missing ca", TLSConfig{Enabled: true, CertFile: "c", KeyFile: "k"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := tt.cfg.ClientConfig()
				assert.Error(t, err)
			})
		}
	})

	t.Run("unreadable files error", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope.pem")
		cfg := TLSConfig{Enabled: true, CertFile: missing, KeyFile: missing, CAFile: missing}
		_, err := cfg.ClientConfig()
		assert.Error(t, err)
	})

	t.Run("garbage ca rejected", func(t *testing.T) {
		dir := t.TempDir()
		ca := filepath.Join(dir, "ca.pem")
		require.NoError(t, os.WriteFile(ca, []byte("not a certificate"), 0o600))

		// Cert loading fails before the CA is parsed, so point the pair
		// at the same garbage to reach the earlier error path.
		cfg := TLSConfig{Enabled: true, CertFile: ca, KeyFile: ca, CAFile: ca}
		_, err := cfg.ClientConfig()
		assert.Error(t, err)
	})
}
