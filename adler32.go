// adler32.go - rolling Adler-32, the delta engine's weak hash
//
// Go's standard library hash/adler32 only exposes a one-shot
// io.Writer-style checksum; it has no incremental update/remove-byte
// API. Grounded in original_source/src/rustsync.rs's use of the Rust
// `adler32` crate's RollingAdler32 (from_buffer/update/remove), this is
// a direct port of that rolling algorithm: byte-at-a-time update and
// remove so the window can slide one byte without rehashing it.
package duet

const adlerMod = 65521

// rollingAdler32 is a window-based Adler-32 checksum that supports
// removing the oldest byte and appending a new one in O(1), the
// operation the compare loop needs every time a block fails to match.
type rollingAdler32 struct {
	a, b uint32
}

// newRollingAdler32 computes the initial checksum over buf: Sign uses it
// for each block, and Compare seeds each fresh window with it.
func newRollingAdler32(buf []byte) rollingAdler32 {
	var r rollingAdler32
	r.a = 1
	r.b = 0
	for _, c := range buf {
		r.a = (r.a + uint32(c)) % adlerMod
		r.b = (r.b + r.a) % adlerMod
	}
	return r
}

// hash returns the combined 32-bit Adler checksum.
func (r rollingAdler32) hash() uint32 {
	return (r.b << 16) | r.a
}

// update appends one new byte to the window.
func (r *rollingAdler32) update(c byte) {
	r.a = (r.a + uint32(c)) % adlerMod
	r.b = (r.b + r.a) % adlerMod
}

// remove drops the oldest byte from a window that currently has length
// size (before removal), mirroring the adler32 crate's remove(size, byte).
func (r *rollingAdler32) remove(size int, c byte) {
	bc := uint32(c)
	r.a = (r.a + adlerMod - bc) % adlerMod
	sz := uint32(size) % adlerMod
	sub := (sz * bc) % adlerMod
	r.b = (r.b + adlerMod - sub) % adlerMod
	// the initial 1 that seeds `a` was added into b once per byte of
	// the window; with one byte fewer, one copy of it is dropped too.
	r.b = (r.b + adlerMod - 1) % adlerMod
}
