package metrics

import "time"

// Observer receives task lifecycle events. Implementations must be safe for
// concurrent use; every running task reports on its own goroutine.
type Observer interface {
	// TaskStarted is called once a task has been registered and spawned.
	TaskStarted(testType string)
	// SampleRecorded is called for every sample a running task produces.
	SampleRecorded(testType string, value float64)
	// TaskFinished is called with the terminal outcome of a started task.
	TaskFinished(testType, outcome string, elapsed time.Duration)
	// TaskRejected is called when a task fails before it is started.
	TaskRejected(testType, outcome string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) TaskStarted(string)                          {}
func (Nop) SampleRecorded(string, float64)              {}
func (Nop) TaskFinished(string, string, time.Duration) {}
func (Nop) TaskRejected(string, string)                 {}

// Multi fans events out to several observers in order.
type Multi []Observer

func (m Multi) TaskStarted(testType string) {
	for _, o := range m {
		o.TaskStarted(testType)
	}
}

func (m Multi) SampleRecorded(testType string, value float64) {
	for _, o := range m {
		o.SampleRecorded(testType, value)
	}
}

func (m Multi) TaskFinished(testType, outcome string, elapsed time.Duration) {
	for _, o := range m {
		o.TaskFinished(testType, outcome, elapsed)
	}
}

func (m Multi) TaskRejected(testType, outcome string) {
	for _, o := range m {
		o.TaskRejected(testType, outcome)
	}
}

var (
	_ Observer = Nop{}
	_ Observer = Multi(nil)
	_ Observer = (*Collector)(nil)
	_ Observer = (*PromExporter)(nil)
)
