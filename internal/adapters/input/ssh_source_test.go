package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSHConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SSHConfig
		wantErr bool
	}{
		{
			name:    "password auth",
			cfg:     SSHConfig{Host: "bastion", User: "ops", Password: "secret"},
			wantErr: false,
		},
		{
			name:    "key auth",
			cfg:     SSHConfig{Host: "bastion", User: "ops", KeyFile: "/home/ops/.ssh/id_ed25519"},
			wantErr: false,
		},
		{
			name:    "missing host",
			cfg:     SSHConfig{User: "ops", Password: "secret"},
			wantErr: true,
		},
		{
			name:    "missing user",
			cfg:     SSHConfig{Host: "bastion", Password: "secret"},
			wantErr: true,
		},
		{
			name:    "no credentials",
			cfg:     SSHConfig{Host: "bastion", User: "ops"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewSSHSource_RejectsBadConfig(t *testing.T) {
	_, err := NewSSHSource(SSHConfig{Host: "bastion", User: "ops"})
	assert.Error(t, err)
}

func TestNewSSHSource_AppliesDefaults(t *testing.T) {
	src, err := NewSSHSource(SSHConfig{Host: "bastion", User: "ops", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, 22, src.cfg.Port)
	assert.Equal(t, "/var/log/auth.log", src.cfg.LogPath)
	assert.Equal(t, 10*time.Second, src.cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, src.cfg.Backoff)
	assert.Equal(t, 1000, src.cfg.BufferSize)
	assert.Equal(t, StateDisconnected, src.State())
	assert.True(t, src.ConnectedSince().IsZero())
}
