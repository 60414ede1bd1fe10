package store

import "strconv"

// Reader is the read side of a sample store
type Reader interface {
	// Len returns the number of values currently held
	Len() int
	// Cap returns the fixed capacity of the store
	Cap() int
	// AppendJSON appends the current state as a JSON array to dst
	AppendJSON(dst []byte) []byte
}

func appendInt32s(dst []byte, values []int32) []byte {
	dst = append(dst, '[')
	for i, v := range values {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendInt(dst, int64(v), 10)
	}
	return append(dst, ']')
}

// Floats are always rendered with two decimal places.
func appendFloats(dst []byte, values []float64) []byte {
	dst = append(dst, '[')
	for i, v := range values {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendFloat(dst, v, 'f', 2, 64)
	}
	return append(dst, ']')
}
