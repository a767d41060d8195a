package metrics

import "github.com/kilianp07/gridflex/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks" koanf:"sinks"`
	// ListenAddr exposes Prometheus metrics on /metrics when set.
	ListenAddr string `json:"listen_addr" yaml:"listen_addr" koanf:"listen_addr"`
}
