package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bnema/flotilla/internal/domain"
)

func TestRenderUsesDocumentFieldNames(t *testing.T) {
	proj := &domain.Project{
		Name: "proj",
		Services: []domain.ServiceSpec{{
			Name:            "web",
			Image:           "nginx:latest",
			Command:         []string{"nginx", "-g", "daemon off;"},
			Environment:     map[string]string{"MODE": "prod"},
			Ports:           []domain.PortBinding{{Target: "80/tcp", HostPort: "8080"}},
			Volumes:         []domain.VolumeMount{{Source: "data", Target: "/srv", Mode: "ro"}},
			DependsOn:       []string{"db"},
			StopGracePeriod: 3 * time.Second,
			MemLimit:        64 * 1024 * 1024,
			NetworkMode:     domain.NetworkMode{Kind: domain.NetworkModeHost},
		}},
		Networks: map[string]domain.NetworkSpec{
			"backend": {Name: "backend", Driver: "bridge"},
		},
		Volumes: map[string]domain.VolumeSpec{
			"data": {Name: "data", External: true},
		},
	}

	out, err := Render(proj)
	require.NoError(t, err)
	rendered := string(out)

	assert.NotContains(t, rendered, "StopGracePeriod")
	assert.NotContains(t, rendered, "Services")
	assert.Contains(t, rendered, "stop_grace_period: 3s")
	assert.Contains(t, rendered, "mem_limit:")
	assert.Contains(t, rendered, "network_mode: host")
	assert.Contains(t, rendered, "- 8080:80")
	assert.Contains(t, rendered, "- data:/srv:ro")

	var doc File
	require.NoError(t, yaml.Unmarshal(out, &doc))
	require.Contains(t, doc.Services, "web")
	web := doc.Services["web"]
	assert.Equal(t, "nginx:latest", web.Image)
	assert.Equal(t, StringList{"db"}, web.DependsOn)
	require.Contains(t, doc.Networks, "backend")
	assert.Equal(t, "bridge", doc.Networks["backend"].Driver)
	require.Contains(t, doc.Volumes, "data")
	assert.True(t, doc.Volumes["data"].External)
}
