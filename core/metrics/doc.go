// Package metrics defines the sinks that record optimization runs. A sink
// implements MetricsSink and may also implement ScheduleRecorder to receive
// full schedules. Sinks are built from configuration through a registry and
// combined with NewMultiSink when several are configured.
package metrics
