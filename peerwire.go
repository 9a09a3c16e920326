// peerwire.go - marshal/unmarshal for the peer RPC payloads
//
// Extends entry.go/encdec.go's length-prefixed encoding style to the
// richer values the peer protocol exchanges: Change, Action, Locations,
// Ignore, Signature, Delta and ChangeDetail. Each append* helper grows
// a byte slice the way
// go-fio's encdec.go helpers consume one, just in the other direction,
// since the peer driver builds variable-shaped frames rather than
// fixed-size records.
package duet

import "fmt"

func appendU32(b []byte, n uint32) []byte {
	return append(b, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func appendU64(b []byte, n uint64) []byte {
	return append(b,
		byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
		byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func appendStr(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s)))
	return append(b, s...)
}

func appendBytes(b, s []byte) []byte {
	b = appendU32(b, uint32(len(s)))
	return append(b, s...)
}

func appendEntry(b []byte, e Entry) []byte {
	n := e.MarshalSize()
	b = appendU32(b, uint32(n))
	tmp := make([]byte, n)
	e.MarshalTo(tmp)
	return append(b, tmp...)
}

func takeEntry(b []byte) ([]byte, Entry, error) {
	if len(b) < 4 {
		return nil, Entry{}, fmt.Errorf("peer: entry: %w", ErrTooSmall)
	}
	var n int
	b, n = dec32[int](b)
	if len(b) < n {
		return nil, Entry{}, fmt.Errorf("peer: entry: %w", ErrTooSmall)
	}
	var e Entry
	if _, err := e.Unmarshal(b[:n]); err != nil {
		return nil, Entry{}, err
	}
	return b[n:], e, nil
}

func appendChange(b []byte, c Change) []byte {
	b = append(b, byte(c.Kind))
	b = appendEntry(b, c.Old)
	b = appendEntry(b, c.New)
	return b
}

func takeChange(b []byte) ([]byte, Change, error) {
	if len(b) < 1 {
		return nil, Change{}, fmt.Errorf("peer: change: %w", ErrTooSmall)
	}
	kind := ChangeKind(b[0])
	b = b[1:]
	var c Change
	var err error
	b, c.Old, err = takeEntry(b)
	if err != nil {
		return nil, Change{}, err
	}
	b, c.New, err = takeEntry(b)
	if err != nil {
		return nil, Change{}, err
	}
	c.Kind = kind
	return b, c, nil
}

func appendChanges(b []byte, cs []Change) []byte {
	b = appendU32(b, uint32(len(cs)))
	for _, c := range cs {
		b = appendChange(b, c)
	}
	return b
}

func takeChanges(b []byte) ([]byte, []Change, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("peer: changes: %w", ErrTooSmall)
	}
	var n int
	b, n = dec32[int](b)
	out := make([]Change, n)
	var err error
	for i := 0; i < n; i++ {
		b, out[i], err = takeChange(b)
		if err != nil {
			return nil, nil, err
		}
	}
	return b, out, nil
}

func appendAction(b []byte, a Action) []byte {
	b = append(b, byte(a.Kind))
	b = appendChange(b, a.C)
	b = appendChange(b, a.R)
	b = appendChange(b, a.L)
	b = appendChange(b, a.Effective)
	return b
}

func takeAction(b []byte) ([]byte, Action, error) {
	if len(b) < 1 {
		return nil, Action{}, fmt.Errorf("peer: action: %w", ErrTooSmall)
	}
	kind := ActionKind(b[0])
	b = b[1:]
	var a Action
	var err error
	for _, dst := range []*Change{&a.C, &a.R, &a.L, &a.Effective} {
		b, *dst, err = takeChange(b)
		if err != nil {
			return nil, Action{}, err
		}
	}
	a.Kind = kind
	return b, a, nil
}

func appendActions(b []byte, as []Action) []byte {
	b = appendU32(b, uint32(len(as)))
	for _, a := range as {
		b = appendAction(b, a)
	}
	return b
}

func takeActions(b []byte) ([]byte, []Action, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("peer: actions: %w", ErrTooSmall)
	}
	var n int
	b, n = dec32[int](b)
	out := make([]Action, n)
	var err error
	for i := 0; i < n; i++ {
		b, out[i], err = takeAction(b)
		if err != nil {
			return nil, nil, err
		}
	}
	return b, out, nil
}

func appendLocations(b []byte, locs Locations) []byte {
	b = appendU32(b, uint32(len(locs)))
	for _, l := range locs {
		b = appendStr(b, l.Path)
		b = appendBool(b, l.Include)
	}
	return b
}

func takeLocations(b []byte) ([]byte, Locations, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("peer: locations: %w", ErrTooSmall)
	}
	var n int
	b, n = dec32[int](b)
	out := make(Locations, n)
	var err error
	for i := 0; i < n; i++ {
		if b, out[i].Path, err = decstr(b); err != nil {
			return nil, nil, err
		}
		if len(b) < 1 {
			return nil, nil, fmt.Errorf("peer: locations: %w", ErrTooSmall)
		}
		out[i].Include = b[0] == 1
		b = b[1:]
	}
	return b, out, nil
}

func appendIgnore(b []byte, ig Ignore) []byte {
	b = appendU32(b, uint32(len(ig)))
	for _, pat := range ig {
		b = appendStr(b, pat)
	}
	return b
}

func takeIgnore(b []byte) ([]byte, Ignore, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("peer: ignore: %w", ErrTooSmall)
	}
	var n int
	b, n = dec32[int](b)
	out := make(Ignore, n)
	var err error
	for i := 0; i < n; i++ {
		if b, out[i], err = decstr(b); err != nil {
			return nil, nil, err
		}
	}
	return b, out, nil
}

func appendSignature(b []byte, sig *Signature) []byte {
	b = appendU32(b, uint32(sig.Window))
	b = appendU32(b, uint32(len(sig.chunks)))
	for weak, strongs := range sig.chunks {
		b = appendU32(b, weak)
		b = appendU32(b, uint32(len(strongs)))
		for strong, off := range strongs {
			b = append(b, strong[:]...)
			b = appendU64(b, uint64(off))
		}
	}
	return b
}

func takeSignature(b []byte) ([]byte, *Signature, error) {
	if len(b) < 8 {
		return nil, nil, fmt.Errorf("peer: signature: %w", ErrTooSmall)
	}
	var window, weakCount int
	b, window = dec32[int](b)
	b, weakCount = dec32[int](b)

	sig := &Signature{Window: window, chunks: make(map[uint32]map[strongHash]int64, weakCount)}
	for i := 0; i < weakCount; i++ {
		if len(b) < 8 {
			return nil, nil, fmt.Errorf("peer: signature: %w", ErrTooSmall)
		}
		var weak uint32
		var strongCount int
		b, weak = dec32[uint32](b)
		b, strongCount = dec32[int](b)

		m := make(map[strongHash]int64, strongCount)
		for j := 0; j < strongCount; j++ {
			if len(b) < strongHashSize+8 {
				return nil, nil, fmt.Errorf("peer: signature: %w", ErrTooSmall)
			}
			var sh strongHash
			copy(sh[:], b[:strongHashSize])
			b = b[strongHashSize:]
			var off int64
			b, off = dec64[int64](b)
			m[sh] = off
		}
		sig.chunks[weak] = m
	}
	return b, sig, nil
}

func appendDelta(b []byte, d *Delta) []byte {
	b = appendU32(b, uint32(d.Window))
	b = appendU32(b, uint32(len(d.Blocks)))
	for _, blk := range d.Blocks {
		b = appendBool(b, blk.FromSource)
		if blk.FromSource {
			b = appendU64(b, uint64(blk.Offset))
		} else {
			b = appendBytes(b, blk.Literal)
		}
	}
	return b
}

func takeDelta(b []byte) ([]byte, *Delta, error) {
	if len(b) < 8 {
		return nil, nil, fmt.Errorf("peer: delta: %w", ErrTooSmall)
	}
	var window, count int
	b, window = dec32[int](b)
	b, count = dec32[int](b)

	d := &Delta{Window: window, Blocks: make([]Block, count)}
	for i := 0; i < count; i++ {
		if len(b) < 1 {
			return nil, nil, fmt.Errorf("peer: delta: %w", ErrTooSmall)
		}
		fromSource := b[0] == 1
		b = b[1:]
		if fromSource {
			var off int64
			b, off = dec64[int64](b)
			d.Blocks[i] = Block{FromSource: true, Offset: off}
		} else {
			var lit []byte
			var err error
			b, lit, err = decbytes(b)
			if err != nil {
				return nil, nil, err
			}
			d.Blocks[i] = Block{Literal: append([]byte(nil), lit...)}
		}
	}
	return b, d, nil
}

func appendChangeDetail(b []byte, d ChangeDetail) []byte {
	b = append(b, byte(d.Kind))
	switch d.Kind {
	case DetailContents:
		b = appendBytes(b, d.Data)
	case DetailDiff:
		b = appendDelta(b, d.Delta)
	}
	return b
}

func takeChangeDetail(b []byte) ([]byte, ChangeDetail, error) {
	if len(b) < 1 {
		return nil, ChangeDetail{}, fmt.Errorf("peer: detail: %w", ErrTooSmall)
	}
	kind := ChangeDetailKind(b[0])
	b = b[1:]
	var d ChangeDetail
	d.Kind = kind
	var err error
	switch kind {
	case DetailContents:
		var data []byte
		b, data, err = decbytes(b)
		if err != nil {
			return nil, ChangeDetail{}, err
		}
		d.Data = append([]byte(nil), data...)
	case DetailDiff:
		b, d.Delta, err = takeDelta(b)
		if err != nil {
			return nil, ChangeDetail{}, err
		}
	}
	return b, d, nil
}

func appendChangeDetails(b []byte, ds []ChangeDetail) []byte {
	b = appendU32(b, uint32(len(ds)))
	for _, d := range ds {
		b = appendChangeDetail(b, d)
	}
	return b
}

func takeChangeDetails(b []byte) ([]byte, []ChangeDetail, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("peer: details: %w", ErrTooSmall)
	}
	var n int
	b, n = dec32[int](b)
	out := make([]ChangeDetail, n)
	var err error
	for i := 0; i < n; i++ {
		b, out[i], err = takeChangeDetail(b)
		if err != nil {
			return nil, nil, err
		}
	}
	return b, out, nil
}

func appendSignatures(b []byte, sigs []*Signature) []byte {
	b = appendU32(b, uint32(len(sigs)))
	for _, s := range sigs {
		b = appendSignature(b, s)
	}
	return b
}

func takeSignatures(b []byte) ([]byte, []*Signature, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("peer: signatures: %w", ErrTooSmall)
	}
	var n int
	b, n = dec32[int](b)
	out := make([]*Signature, n)
	var err error
	for i := 0; i < n; i++ {
		b, out[i], err = takeSignature(b)
		if err != nil {
			return nil, nil, err
		}
	}
	return b, out, nil
}
