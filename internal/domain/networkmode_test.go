package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetworkMode(t *testing.T) {
	cases := []struct {
		in   string
		want NetworkMode
	}{
		{"", NetworkMode{Kind: NetworkModeDefault}},
		{"bridge", NetworkMode{Kind: NetworkModeBridge}},
		{"host", NetworkMode{Kind: NetworkModeHost}},
		{"none", NetworkMode{Kind: NetworkModeNone}},
		{"service:db", NetworkMode{Kind: NetworkModeService, Ref: "db"}},
		{"container:abc123", NetworkMode{Kind: NetworkModeContainer, Ref: "abc123"}},
	}

	for _, tc := range cases {
		mode, err := ParseNetworkMode(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, mode)
		assert.Equal(t, tc.in, mode.String())
	}
}

func TestParseNetworkModeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"overlay", "service:", "container:"} {
		_, err := ParseNetworkMode(in)
		assert.Error(t, err, in)
	}
}
