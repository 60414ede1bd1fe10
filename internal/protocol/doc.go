// Package protocol implements decoding of the sensor's UDP payloads.
// It handles the fixed-length binary snapshot format (N signed 32-bit integers)
// and the ASCII decimal format used by window-mode senders.
package protocol
