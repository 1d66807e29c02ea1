package blockchain

// The proof of work reward carries a deterministic pseudo-random component
// derived from the previous block hash. The generator below reproduces the
// output stream of the reference implementation bit for bit, including the
// bounded draw, so the reward schedule is part of consensus.

const (
	mtStateSize  = 624
	mtShiftSize  = 397
	mtMatrixA    = 0x9908b0df
	mtUpperMask  = 0x80000000
	mtLowerMask  = 0x7fffffff
	mtInitFactor = 1812433253
)

// mersenneTwister is a 32-bit MT19937 generator.
type mersenneTwister struct {
	state [mtStateSize]uint32
	index int
}

// newMersenneTwister returns a generator seeded with the given value.
func newMersenneTwister(seed uint32) *mersenneTwister {
	mt := &mersenneTwister{}
	mt.seed(seed)
	return mt
}

func (mt *mersenneTwister) seed(seed uint32) {
	mt.state[0] = seed
	for i := uint32(1); i < mtStateSize; i++ {
		prev := mt.state[i-1]
		mt.state[i] = mtInitFactor*(prev^(prev>>30)) + i
	}
	mt.index = mtStateSize
}

// next returns the next 32 bits from the generator.
func (mt *mersenneTwister) next() uint32 {
	if mt.index >= mtStateSize {
		mt.generate()
	}

	y := mt.state[mt.index]
	mt.index++

	// Tempering.
	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

func (mt *mersenneTwister) generate() {
	for i := 0; i < mtStateSize; i++ {
		y := (mt.state[i] & mtUpperMask) | (mt.state[(i+1)%mtStateSize] & mtLowerMask)
		next := mt.state[(i+mtShiftSize)%mtStateSize] ^ (y >> 1)
		if y&1 != 0 {
			next ^= mtMatrixA
		}
		mt.state[i] = next
	}
	mt.index = 0
}

// uniform returns a uniformly distributed value on the inclusive range
// [0, max]. It reproduces the downscaling algorithm the reference
// implementation's standard library uses, so the result for a given seed is
// identical across platforms.
func (mt *mersenneTwister) uniform(max uint32) uint32 {
	if max == 0xffffffff {
		return mt.next()
	}

	rangeSize := uint64(max) + 1
	scaling := uint64(0xffffffff) / rangeSize
	for {
		ret := uint64(mt.next()) / scaling
		if ret <= uint64(max) {
			return uint32(ret)
		}
	}
}
