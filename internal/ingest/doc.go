// Package ingest turns raw datagram payloads into sample store writes.
// There is one Handler per ingestion mode; the UDP server calls it for
// every received packet on a single goroutine.
package ingest
