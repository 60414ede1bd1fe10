// Package metrics defines the Prometheus metrics exported by the bridge.
package metrics
