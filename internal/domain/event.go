package domain

import "time"

// Event is one projected lifecycle event for a container belonging to the
// active project, derived from the engine's raw feed.
type Event struct {
	Timestamp   time.Time
	Action      string
	ContainerID string
	Service     string
	Instance    int
	Attributes  map[string]string
}

// EventWindow bounds an event stream in time. A zero Since means live from
// now; a zero Until means the stream follows until canceled.
type EventWindow struct {
	Since time.Time
	Until time.Time
}
