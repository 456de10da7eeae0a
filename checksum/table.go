// Package checksum implements CRC-32 (IEEE, reflected polynomial 0xEDB88320)
// with a slice-by-16 bulk path and algebraic combination of checksums taken
// over adjacent byte ranges.
//
// Values are interchangeable with hash/crc32's IEEE checksums: Checksum(p)
// equals crc32.ChecksumIEEE(p) for every p.
package checksum

// Polynomial is the reflected CRC-32 generator (ISO/IEC 3309, IEEE 802.3).
const Polynomial uint32 = 0xEDB88320

// slicingTable holds 16 lookup tables. Row k maps a byte b to the CRC state
// contribution of b followed by k zero bytes.
type slicingTable [16][256]uint32

// ieeeTable is built once at package initialisation and never written again.
var ieeeTable = makeSlicingTable(Polynomial)

func makeSlicingTable(poly uint32) *slicingTable {
	t := new(slicingTable)
	for i := 0; i < 256; i++ {
		crc := uint32(i)
		for j := 0; j < 8; j++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		t[0][i] = crc
	}
	for i := 0; i < 256; i++ {
		crc := t[0][i]
		for k := 1; k < 16; k++ {
			crc = t[0][crc&0xFF] ^ (crc >> 8)
			t[k][i] = crc
		}
	}
	return t
}
