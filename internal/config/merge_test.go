package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseService(t *testing.T, doc string) *RawService {
	t.Helper()
	f, err := ParseFile("test.yml", []byte(doc))
	require.NoError(t, err)
	require.Len(t, f.Services, 1)
	for _, svc := range f.Services {
		return svc
	}
	return nil
}

func TestMergeScalarsLatestWins(t *testing.T) {
	base := parseService(t, `
services:
  web:
    image: busybox:1.35
    restart: "no"
    user: root
`)
	override := parseService(t, `
services:
  web:
    image: busybox:1.36
    stop_signal: SIGUSR1
`)

	merged := mergeServices(base, override)
	assert.Equal(t, "busybox:1.36", merged.Image)
	assert.Equal(t, "SIGUSR1", merged.StopSignal)
	// Absent in the override layer: earlier values survive.
	assert.Equal(t, "no", merged.Restart)
	assert.Equal(t, "root", merged.User)
}

func TestMergePortsConcatenatedWithoutDuplicates(t *testing.T) {
	base := parseService(t, `
services:
  web:
    image: busybox
    ports: ["8080:80", "9000:9000"]
    expose: ["3000"]
`)
	override := parseService(t, `
services:
  web:
    ports: ["9000:9000", "8443:443"]
    expose: ["3000", "3001"]
`)

	merged := mergeServices(base, override)
	assert.Equal(t, []string{"8080:80", "9000:9000", "8443:443"}, merged.Ports)
	assert.Equal(t, StringList{"3000", "3001"}, merged.Expose)
}

func TestMergeMappingsKeyByKey(t *testing.T) {
	base := parseService(t, `
services:
  web:
    image: busybox
    environment:
      FOO: base
      KEEP: "yes"
    labels:
      team: infra
`)
	override := parseService(t, `
services:
  web:
    environment:
      FOO: override
      NEW: added
`)

	merged := mergeServices(base, override)
	assert.Equal(t, StringMap{"FOO": "override", "KEEP": "yes", "NEW": "added"}, merged.Environment)
	assert.Equal(t, StringMap{"team": "infra"}, merged.Labels)
}

func TestMergeVolumesByTargetPath(t *testing.T) {
	base := parseService(t, `
services:
  web:
    image: busybox
    volumes:
      - data:/var/lib/data
      - ./static:/srv/static:ro
`)
	override := parseService(t, `
services:
  web:
    volumes:
      - other:/var/lib/data:ro
      - cache:/var/cache
`)

	merged := mergeServices(base, override)
	assert.Equal(t, []string{
		"other:/var/lib/data:ro",
		"./static:/srv/static:ro",
		"cache:/var/cache",
	}, merged.Volumes)
}

func TestMountTargetKeysByContainerPath(t *testing.T) {
	assert.Equal(t, "/var/lib/data", mountTarget("data:/var/lib/data"))
	assert.Equal(t, "/srv/static", mountTarget("./static:/srv/static:ro"))
	assert.Equal(t, "/anon", mountTarget("/anon"))
	assert.Equal(t, "a:b:c:d", mountTarget("a:b:c:d"))
}

func TestMergeIsDeterministic(t *testing.T) {
	base := parseService(t, `
services:
  web:
    image: busybox
    environment: {A: "1", B: "2"}
    ports: ["80:80"]
`)
	override := parseService(t, `
services:
  web:
    environment: {B: "3"}
    ports: ["443:443"]
`)

	first := mergeServices(base, override)
	second := mergeServices(base, override)
	assert.Equal(t, first, second)
}
