// Package publish mirrors the sample store to an MQTT topic.
// The UDP server signals changes with Notify; Run publishes the current
// store contents after each signal, coalescing bursts into one publish.
package publish
