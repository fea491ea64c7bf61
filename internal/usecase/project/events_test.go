package project_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/flotilla/internal/domain"
	"github.com/bnema/flotilla/internal/testutils"
)

func TestStreamEventsFiltersUndeclaredServices(t *testing.T) {
	ctx, cancel := context.WithCancel(testutils.TestContext(t))
	defer cancel()
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	events, _, err := svc.StreamEvents(ctx, nil, domain.EventWindow{})
	require.NoError(t, err)

	eng.Emit(domain.Event{Action: "start", Service: "ghost", ContainerID: "x"})
	eng.Emit(domain.Event{Action: "start", Service: "web", ContainerID: "y", Timestamp: time.Now()})

	select {
	case ev := <-events:
		assert.Equal(t, "web", ev.Service)
		assert.Equal(t, "y", ev.ContainerID)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a web event")
	}
}

func TestStreamEventsHonorsServiceSelection(t *testing.T) {
	ctx, cancel := context.WithCancel(testutils.TestContext(t))
	defer cancel()
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	svc := newService(t, eng, testProject(webSpec(), dbSpec()))

	events, _, err := svc.StreamEvents(ctx, []string{"db"}, domain.EventWindow{})
	require.NoError(t, err)

	eng.Emit(domain.Event{Action: "start", Service: "web", ContainerID: "a"})
	eng.Emit(domain.Event{Action: "die", Service: "db", ContainerID: "b"})

	select {
	case ev := <-events:
		assert.Equal(t, "db", ev.Service)
		assert.Equal(t, "die", ev.Action)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a db event")
	}
}

func TestStreamEventsRejectsUnknownService(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine()
	svc := newService(t, eng, testProject(webSpec()))

	_, _, err := svc.StreamEvents(ctx, []string{"nope"}, domain.EventWindow{})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestStreamEventsPassesWindowThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(testutils.TestContext(t))
	defer cancel()
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	since := time.Now().Add(-time.Hour)
	until := time.Now()
	_, _, err := svc.StreamEvents(ctx, nil, domain.EventWindow{Since: since, Until: until})
	require.NoError(t, err)

	w := eng.EventWindow()
	assert.Equal(t, since, w.Since)
	assert.Equal(t, until, w.Until)
}

func TestStreamEventsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(testutils.TestContext(t))
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	events, _, err := svc.StreamEvents(ctx, nil, domain.EventWindow{})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "event channel must close on cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("event channel never closed")
	}
}
