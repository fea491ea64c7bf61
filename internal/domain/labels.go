package domain

// Label keys written onto engine-managed containers, networks and volumes.
// These labels are the sole persisted state: everything the project owns is
// rediscovered from them on a later invocation.
const (
	LabelProject    = "flotilla.project"
	LabelService    = "flotilla.service"
	LabelInstance   = "flotilla.instance"
	LabelOneOff     = "flotilla.oneoff"
	LabelConfigHash = "flotilla.config-hash"
)
