// Package metrics defines the sinks that observe optimisation runs. Sinks
// like PromSink and InfluxSink record the outcome of every solve and may also
// persist the solved schedule. The factory helpers return a MultiSink
// automatically when multiple sinks are configured.
package metrics
