// Package factory is the generic registry behind gridflex's pluggable parts.
// A module is named by a type string and carries a map of raw settings that
// its factory decodes into a typed struct.
//
// Solver backends are registered in app/plugins ("lp" is built in) and
// selected by the solver section of the configuration. Metrics sinks such as
// "prometheus" and "influx" are registered by infra/metrics and may be
// combined into a MultiSink.
//
// Example usage:
//
//	reg := factory.NewRegistry[solver.Solver]()
//	reg.Register("lp", func(conf map[string]any) (solver.Solver, error) {
//	    var c struct{ TimeLimit time.Duration `json:"time_limit"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newBackend(c.TimeLimit), nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "lp", Conf: map[string]any{"time_limit": "30s"}})
package factory
