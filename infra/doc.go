// Package infra contains technical adapters such as the LP solver, MQTT
// publisher, price store and metrics exporters. These packages should depend
// only on the interfaces defined in the core packages.
package infra
