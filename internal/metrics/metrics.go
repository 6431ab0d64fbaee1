// Package metrics provides Prometheus metrics for bot launches and terminations.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/botlauncher/internal/events"
)

const namespace = "botlauncher"

// Label values for the result label.
const (
	ResultSuccess    = "success"
	ResultFailed     = "failed"
	ResultTerminated = "terminated"
	ResultKilled     = "killed"
)

// Recorder owns a private registry so one-shot runs export only their own
// series.
type Recorder struct {
	registry *prometheus.Registry

	launches            *prometheus.CounterVec
	launchFailures      *prometheus.CounterVec
	terminations        *prometheus.CounterVec
	terminationDuration prometheus.Histogram
	botPID              prometheus.Gauge
	lastLaunch          prometheus.Gauge
	exits               prometheus.Counter

	mu     sync.Mutex
	curPID int
}

// NewRecorder creates a Recorder with all series registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		launches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Total bot launches by result",
		}, []string{"result"}),
		launchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_failures_total",
			Help:      "Total failed bot launches by error code",
		}, []string{"code"}),
		terminations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Total prior instances handled by result",
		}, []string{"result"}),
		terminationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "termination_duration_seconds",
			Help:      "Time spent stopping prior instances",
			Buckets:   prometheus.DefBuckets,
		}),
		botPID: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bot_pid",
			Help:      "PID of the running bot, 0 when none",
		}),
		lastLaunch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_launch_timestamp_seconds",
			Help:      "Unix time of the last successful launch",
		}),
		exits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_exits_total",
			Help:      "Bot exits observed while the launcher was running",
		}),
	}
}

// Registry returns the registry holding the recorder's series.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RegisterBotProcess adds CPU, memory and file descriptor metrics for the
// process returned by pidFn.
func (r *Recorder) RegisterBotProcess(pidFn func() (int, error)) error {
	return r.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		PidFn:     pidFn,
		Namespace: namespace + "_bot",
	}))
}

// RecordLaunch records a successful launch of pid at t.
func (r *Recorder) RecordLaunch(pid int, t time.Time) {
	r.launches.WithLabelValues(ResultSuccess).Inc()
	r.lastLaunch.Set(float64(t.Unix()))

	r.mu.Lock()
	r.curPID = pid
	r.mu.Unlock()
	r.botPID.Set(float64(pid))
}

// RecordLaunchFailure records a failed launch with its error code.
func (r *Recorder) RecordLaunchFailure(code string) {
	r.launches.WithLabelValues(ResultFailed).Inc()
	r.launchFailures.WithLabelValues(code).Inc()
}

// RecordTermination counts one prior instance by result.
func (r *Recorder) RecordTermination(result string) {
	r.terminations.WithLabelValues(result).Inc()
}

// ObserveTermination records how long a termination pass took.
func (r *Recorder) ObserveTermination(d time.Duration) {
	r.terminationDuration.Observe(d.Seconds())
}

// RecordExit records the exit of pid. The PID gauge is cleared only when
// pid is the current bot.
func (r *Recorder) RecordExit(pid int) {
	r.exits.Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.curPID == pid {
		r.curPID = 0
		r.botPID.Set(0)
	}
}

// Attach subscribes the recorder to supervisor events on bus.
// Events are delivered asynchronously; call the Record methods directly
// when the values must be present before the process exits.
// Returns a function that removes all subscriptions.
func (r *Recorder) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.ProcessLaunchedEvent) {
			r.RecordLaunch(e.PID, e.StartedAt)
		}),
		bus.Subscribe(func(e events.LaunchFailedEvent) {
			r.RecordLaunchFailure(e.Code)
		}),
		bus.Subscribe(func(e events.PriorInstanceTerminatedEvent) {
			if e.Forced {
				r.RecordTermination(ResultKilled)
			} else {
				r.RecordTermination(ResultTerminated)
			}
		}),
		bus.Subscribe(func(_ events.TerminationFailedEvent) {
			r.RecordTermination(ResultFailed)
		}),
		bus.Subscribe(func(e events.ProcessExitedEvent) {
			r.RecordExit(e.PID)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
