package build

// Stage names a pipeline step
type Stage string

const (
	StageDiscover  Stage = "discover"
	StageInstall   Stage = "install"
	StageCompile   Stage = "compile"
	StageBindgen   Stage = "bindgen"
	StageFetch     Stage = "fetch"
	StageOptimize  Stage = "optimize"
	StageBootstrap Stage = "bootstrap"
)

// Status is the state an Event reports
type Status int

const (
	StatusStarted Status = iota
	StatusDone
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Event reports progress of one stage, optionally for one package or version
type Event struct {
	Err     error
	Stage   Stage
	Subject string
	Status  Status
}

// Observer receives events in order. Calls are serialized by the pipeline.
type Observer func(Event)
