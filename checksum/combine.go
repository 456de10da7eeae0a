package checksum

// gf2Dim is the number of bits in the CRC register, and so the dimension of
// the GF(2) operator matrices.
const gf2Dim = 32

// gf2Matrix is a 32x32 bit matrix over GF(2). Row n is the image of bit n.
type gf2Matrix [gf2Dim]uint32

// times multiplies the matrix by vec: the XOR of the rows selected by the set
// bits of vec.
func (m *gf2Matrix) times(vec uint32) uint32 {
	var sum uint32
	for i := 0; vec != 0; i++ {
		if vec&1 == 1 {
			sum ^= m[i]
		}
		vec >>= 1
	}
	return sum
}

// squareOf sets m to src*src.
func (m *gf2Matrix) squareOf(src *gf2Matrix) {
	for n := 0; n < gf2Dim; n++ {
		m[n] = src.times(src[n])
	}
}

// Combine returns the CRC-32 of A‖B given crc1 = CRC-32(A), crc2 = CRC-32(B)
// computed as a fresh stream, and len2 = len(B) in bytes.
//
// Neither range is reread. The caller must guarantee that B directly follows
// A: Combine cannot tell when the ranges are not adjacent or are passed in the
// wrong order, and returns a well-formed but meaningless value for them.
func Combine(crc1, crc2 uint32, len2 uint64) uint32 {
	if len2 == 0 {
		return crc1
	}

	var even gf2Matrix // even power-of-two zeros operator
	var odd gf2Matrix  // odd power-of-two zeros operator

	// operator for one zero bit
	odd[0] = Polynomial
	row := uint32(1)
	for n := 1; n < gf2Dim; n++ {
		odd[n] = row
		row <<= 1
	}

	// two zero bits, then four
	even.squareOf(&odd)
	odd.squareOf(&even)

	// Apply len2 zero bytes to crc1. The first square puts the operator for
	// one zero byte (eight bits) in even.
	for {
		even.squareOf(&odd)
		if len2&1 == 1 {
			crc1 = even.times(crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}

		odd.squareOf(&even)
		if len2&1 == 1 {
			crc1 = odd.times(crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
	}

	return crc1 ^ crc2
}
