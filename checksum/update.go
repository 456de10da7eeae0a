package checksum

const (
	unroll      = 4
	bytesAtOnce = 16 * unroll
)

// UpdateBytewise returns the CRC-32 of the stream whose checksum so far is crc
// extended by p, processing one byte per table lookup. Pass 0 to start a new
// stream. It is the reference the bulk path is checked against.
func UpdateBytewise(crc uint32, p []byte) uint32 {
	t := &ieeeTable[0]
	crc = ^crc
	for _, b := range p {
		crc = t[byte(crc)^b] ^ (crc >> 8)
	}
	return ^crc
}

// UpdateFast is UpdateBytewise using slice-by-16 lookups. Input is consumed in
// 64-byte blocks; the remaining tail goes through UpdateBytewise.
func UpdateFast(crc uint32, p []byte) uint32 {
	t := ieeeTable
	crc = ^crc

	for len(p) >= bytesAtOnce {
		for i := 0; i < unroll; i++ {
			_ = p[15]
			crc = t[0x0][p[0xf]] ^
				t[0x1][p[0xe]] ^
				t[0x2][p[0xd]] ^
				t[0x3][p[0xc]] ^
				t[0x4][p[0xb]] ^
				t[0x5][p[0xa]] ^
				t[0x6][p[0x9]] ^
				t[0x7][p[0x8]] ^
				t[0x8][p[0x7]] ^
				t[0x9][p[0x6]] ^
				t[0xa][p[0x5]] ^
				t[0xb][p[0x4]] ^
				t[0xc][p[0x3]^byte(crc>>24)] ^
				t[0xd][p[0x2]^byte(crc>>16)] ^
				t[0xe][p[0x1]^byte(crc>>8)] ^
				t[0xf][p[0x0]^byte(crc)]
			p = p[16:]
		}
	}

	// UpdateBytewise re-inverts on entry, so hand it the un-inverted value.
	return UpdateBytewise(^crc, p)
}

// Checksum returns the CRC-32 of p.
func Checksum(p []byte) uint32 {
	return UpdateFast(0, p)
}
