package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLoopback(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"localhost", "host.docker.internal"},
		{"127.0.0.1", "host.docker.internal"},
		{"::1", "host.docker.internal"},
		{"warehouse.example.com", "warehouse.example.com"},
		{"192.168.1.100", "192.168.1.100"},
		{"host.docker.internal", "host.docker.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolveLoopback(tt.input))
		})
	}
}

func TestResolveHostForDocker_RemoteHostsUnchanged(t *testing.T) {
	// Remote hosts are never rewritten, in or out of a container.
	assert.Equal(t, "xy12345.snowflakecomputing.com", ResolveHostForDocker("xy12345.snowflakecomputing.com"))
}

func TestResolveHostForDocker_Loopback(t *testing.T) {
	got := ResolveHostForDocker("localhost")
	if IsRunningInDocker() {
		assert.Equal(t, "host.docker.internal", got)
	} else {
		assert.Equal(t, "localhost", got)
	}
}
