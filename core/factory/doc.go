// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation; solvers and metrics sinks are built this way.
//
// Example usage:
//
//	reg := factory.NewRegistry[milp.Solver]()
//	reg.Register("cbc", func(conf map[string]any) (milp.Solver, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return solver.NewCBC(c.Path, nil), nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "cbc", Conf: map[string]any{"path": "/usr/bin/cbc"}})
package factory
