package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClientConfigIsValid(t *testing.T) {
	cfg := DefaultClientConfig()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Endpoints, 1)
}

func TestValidateRejectsEmptyEndpoints(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Endpoints = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroConnectionsPerEndpoint(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.ConnectionsPerEndpoint = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroEventContextPoolSize(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.EventContextPoolSize = 0
	assert.Error(t, cfg.Validate())
}

func TestNewClusterBuildsOneNodePerEndpoint(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Endpoints = []string{"10.0.0.1:3000", "10.0.0.2:3000"}

	cl := cfg.NewCluster()
	nodes, err := cl.Nodes()
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	assert.Equal(t, "10.0.0.1:3000", nodes[0].Endpoint)
}

func TestStringIncludesEndpointsAndPolicy(t *testing.T) {
	cfg := DefaultClientConfig()
	out := cfg.String()
	assert.Contains(t, out, "127.0.0.1:3000")
	assert.Contains(t, out, "DEFAULT POLICY")
	assert.Contains(t, out, "ENDPOINTS")
}
