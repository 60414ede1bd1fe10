// Package store holds the most recent telemetry state shared between the
// ingestion worker and its readers. Each store keeps its buffer and lock
// together; callers only see copies.
package store
