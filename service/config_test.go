package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONConfig(t *testing.T) {
	cfg, err := NewJSONConfig([]byte(`{
		"fcgi": {
			"network": "tcp",
			"address": "127.0.0.1:9000",
			"maxConnections": 12
		},
		"verbose": true
	}`))
	require.NoError(t, err)

	t.Run("sliceSection", func(t *testing.T) {
		section := cfg.Get("fcgi")
		require.NotNil(t, section)

		var out FCGIConfig
		require.NoError(t, section.Unmarshal(&out))

		assert.Equal(t, "tcp", out.Network)
		assert.Equal(t, "127.0.0.1:9000", out.Address)
		assert.Equal(t, 12, out.MaxConnections)
	})

	t.Run("missingSection", func(t *testing.T) {
		assert.Nil(t, cfg.Get("rpc"))
	})

	t.Run("scalarSection", func(t *testing.T) {
		section := cfg.Get("verbose")
		require.NotNil(t, section)

		var v bool
		require.NoError(t, section.Unmarshal(&v))
		assert.True(t, v)

		assert.Nil(t, section.Get("anything"))
	})
}

func TestJSONConfigRejectsGarbage(t *testing.T) {
	_, err := NewJSONConfig([]byte(`{"fcgi": `))
	assert.Error(t, err)
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("FCGI_SERVE_MAX_CONNECTIONS", "3")
	t.Setenv("FCGI_SERVE_MAX_REQUESTS", "7")
	t.Setenv("FCGI_WEB_SERVER_ADDRS", "10.0.0.1")

	e, err := ParseEnvironment()
	require.NoError(t, err)

	assert.Equal(t, 3, e.MaxConnections)
	assert.Equal(t, 7, e.MaxRequests)
	assert.Equal(t, "10.0.0.1", e.WebServerAddrs)
}

func TestParseEnvironmentRejectsGarbage(t *testing.T) {
	t.Setenv("FCGI_SERVE_MAX_CONNECTIONS", "many")

	_, err := ParseEnvironment()
	assert.Error(t, err)
}
