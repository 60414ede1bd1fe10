// Package server implements the UDP receiver that feeds the sample store and
// the HTTP server that publishes it as JSON, along with health, statistics
// and Prometheus endpoints.
package server
