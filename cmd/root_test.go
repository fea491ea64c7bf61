package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/flotilla/internal/domain"
)

func TestCommandsAreRegistered(t *testing.T) {
	want := []string{
		"up", "down", "stop", "start", "kill", "restart",
		"pause", "unpause", "scale", "run", "rm", "ps",
		"create", "pull", "logs", "port",
		"config", "events", "version",
	}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "command %s missing", name)
	}
}

func TestTimeoutFlagUnsetByDefault(t *testing.T) {
	assert.Nil(t, timeoutFlag(upCmd))
}

func TestTimeoutFlagParsesSeconds(t *testing.T) {
	require.NoError(t, stopCmd.Flags().Set("timeout", "5"))
	defer func() { _ = stopCmd.Flags().Set("timeout", "-1") }()

	d := timeoutFlag(stopCmd)
	require.NotNil(t, d)
	assert.Equal(t, 5*time.Second, *d)
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	out := formatEvent(domain.Event{
		Timestamp:   ts,
		Action:      "start",
		ContainerID: "abc123",
		Service:     "web",
		Attributes:  map[string]string{"image": "nginx:latest", "name": "proj_web_1"},
	})
	assert.Equal(t, "2024-03-01 12:30:00.000000 container start abc123 (image=nginx:latest, name=proj_web_1)", out)
}
