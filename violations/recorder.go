package violations

// Recorder receives engine events for metrics. The metrics package provides
// the Prometheus implementation.
type Recorder interface {
	SweepFinished(result SweepResult, err error)
	Dispatched(err error)
	QueueBuilt(items []QueueItem)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) SweepFinished(SweepResult, error) {}
func (NopRecorder) Dispatched(error)                 {}
func (NopRecorder) QueueBuilt([]QueueItem)           {}
