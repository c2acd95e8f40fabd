// Package infra holds the adapters around the dispatch core: the MILP solvers,
// input loading, MQTT publishing, metrics exporters, logging and error
// monitoring. They depend on the interfaces of the core packages, never the
// other way round.
package infra
