package checksum

import (
	"encoding/binary"
	"hash"
)

// Size is the length in bytes of a CRC-32 checksum.
const Size = 4

// State accumulates a CRC-32 over everything appended to it. The zero value
// is ready to use. A State must not be shared between goroutines; hash
// ranges in parallel with one State each and join them with Combine.
type State struct {
	crc uint32
	n   uint64
}

var _ hash.Hash32 = (*State)(nil)

// New returns an empty State.
func New() *State {
	return &State{}
}

// Seed replaces the running checksum with v and keeps the byte count. It
// continues a stream whose checksum is already known, for example hashing a
// chunk tag and then its payload as one logical stream.
func (s *State) Seed(v uint32) {
	s.crc = v
}

// Append extends the stream with p.
func (s *State) Append(p []byte) {
	s.crc = UpdateFast(s.crc, p)
	s.n += uint64(len(p))
}

// Checksum returns the CRC-32 of the stream so far.
func (s *State) Checksum() uint32 {
	return s.crc
}

// Len returns the number of bytes appended since creation or the last Reset.
func (s *State) Len() uint64 {
	return s.n
}

// Reset returns s to its initial state.
func (s *State) Reset() {
	s.crc = 0
	s.n = 0
}

// Combine folds other into s as if other's bytes had been appended to s.
// The caller guarantees that other's data directly follows s's data; that
// cannot be checked here.
func (s *State) Combine(other *State) {
	s.crc = Combine(s.crc, other.crc, other.n)
	s.n += other.n
}

// Write implements io.Writer. It never fails.
func (s *State) Write(p []byte) (int, error) {
	s.Append(p)
	return len(p), nil
}

// Sum appends the big-endian checksum to b.
func (s *State) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, s.crc)
}

// Sum32 returns the checksum.
func (s *State) Sum32() uint32 { return s.crc }

// Size returns the number of bytes Sum appends.
func (s *State) Size() int { return Size }

// BlockSize returns the hash's block size.
func (s *State) BlockSize() int { return 1 }
