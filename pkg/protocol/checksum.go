package protocol

// Checksum is the running two-byte additive checksum carried by every frame.
// Both bytes wrap modulo 256.
type Checksum struct {
	A uint8
	B uint8
}

// Update folds one byte into the checksum and returns the new value.
func (c Checksum) Update(b byte) Checksum {
	c.A += b
	c.B += c.A
	return c
}

// Reset returns the zero checksum.
func (c Checksum) Reset() Checksum {
	return Checksum{}
}

// Matches reports whether the received checksum bytes equal the computed ones.
func (c Checksum) Matches(a, b uint8) bool {
	return c.A == a && c.B == b
}

// Sum computes the checksum over data in order.
func Sum(data ...byte) Checksum {
	var c Checksum
	for _, b := range data {
		c = c.Update(b)
	}
	return c
}
