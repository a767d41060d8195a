package program

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the full problem structure. Two problems built from the
// same inputs have the same fingerprint.
func (p *Problem) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	num := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		_, _ = d.Write(buf[:])
	}
	integer := func(i int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(i)))
		_, _ = d.Write(buf[:])
	}
	str := func(s string) {
		integer(len(s))
		_, _ = d.WriteString(s)
	}

	integer(len(p.vars))
	for _, v := range p.vars {
		str(v.Key.AssetID)
		str(string(v.Key.Role))
		integer(v.Key.Period)
		num(v.Lower)
		num(v.Upper)
		if v.Binary {
			integer(1)
		} else {
			integer(0)
		}
		str(v.BoundTag.String())
	}
	integer(len(p.cons))
	for _, c := range p.cons {
		str(c.Name)
		str(c.Tag.String())
		integer(int(c.Sense))
		num(c.RHS)
		integer(len(c.Terms))
		for _, t := range c.Terms {
			integer(t.Var)
			num(t.Coef)
		}
	}
	integer(len(p.costs))
	for _, t := range p.costs {
		integer(t.Var)
		num(t.Coef)
		str(string(t.Component))
	}
	return d.Sum64()
}
