// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

var (
	// bigOne is 1 represented as a big.Int. It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// oneLsh256 is 1 shifted left 256 bits. It is defined here to avoid
	// the overhead of creating it multiple times.
	oneLsh256 = new(big.Int).Lsh(bigOne, 256)
)

// serviceForkTargetSpacing is the fixed target block spacing, in seconds,
// that applies once the service upgrade fork has activated.
const serviceForkTargetSpacing = 150

// HashToBig converts a chainhash.Hash into a big.Int that can be used to
// perform math comparisons.
func HashToBig(hash *chainhash.Hash) *big.Int {
	// A Hash is in little-endian, but the big package wants the bytes in
	// big-endian, so reverse them.
	buf := *hash
	blen := len(buf)
	for i := 0; i < blen/2; i++ {
		buf[i], buf[blen-1-i] = buf[blen-1-i], buf[i]
	}

	return new(big.Int).SetBytes(buf[:])
}

// CompactToBig converts a compact representation of a whole number N to an
// unsigned 32-bit number. The representation is similar to IEEE754 floating
// point numbers.
//
// Like IEEE754 floating point, there are three basic components: the sign,
// the exponent, and the mantissa. They are broken out of the 32-bit number as
// follows:
//
//	* the most significant 8 bits represent the unsigned base 256 exponent
// 	* bit 23 (the 24th bit) represents the sign bit
//	* the least significant 23 bits represent the mantissa
//
//	-------------------------------------------------
//	|   Exponent     |    Sign    |    Mantissa     |
//	-------------------------------------------------
//	| 8 bits [31-24] | 1 bit [23] | 23 bits [22-00] |
//	-------------------------------------------------
//
// The formula to calculate N is:
// 	N = (-1^sign) * mantissa * 256^(exponent-3)
//
// This compact form is only used to encode unsigned 256-bit numbers which
// represent difficulty targets, thus there really is not a need for a sign
// bit, but it is implemented here to stay consistent with the reference
// implementation.
func CompactToBig(compact uint32) *big.Int {
	// Extract the mantissa, sign bit, and exponent.
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	// Since the base for the exponent is 256, the exponent can be treated
	// as the number of bytes to represent the full 256-bit number. So,
	// treat the exponent as the number of bytes and shift the mantissa
	// right or left accordingly. This is equivalent to:
	// N = mantissa * 256^(exponent-3)
	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	// Make it negative if the sign bit is set.
	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// BigToCompact converts a whole number N to a compact representation using
// an unsigned 32-bit number. The compact representation only provides 23 bits
// of precision, so values larger than (2^23 - 1) only encode the most
// significant digits of the number. See CompactToBig for details.
func BigToCompact(n *big.Int) uint32 {
	// No need to do any work if it's zero.
	if n.Sign() == 0 {
		return 0
	}

	// Since the base for the exponent is 256, the exponent can be treated
	// as the number of bytes. So, shift the number right or left
	// accordingly. This is equivalent to:
	// mantissa = mantissa / 256^(exponent-3)
	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		// Use a copy to avoid modifying the caller's original number.
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// When the mantissa already has the sign bit set, the number is too
	// large to fit into the available 23-bits, so divide the number by 256
	// and increment the exponent accordingly.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	// Pack the exponent, sign bit, and mantissa into an unsigned 32-bit
	// int and return it.
	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CalcWork calculates a work value from difficulty bits. Bitcoin increases
// the difficulty for generating a block by decreasing the value which the
// generated hash must be less than. This difficulty target is stored in each
// block header using a compact representation as described in the
// documentation for CompactToBig.
//
// The main chain is selected by choosing the chain that has the most proof of
// work (highest difficulty). Since a lower target difficulty value equates to
// higher actual difficulty, the work value which will be accumulated must be
// the inverse of the difficulty. Also, in order to avoid potential division
// by zero and really small floating point numbers, the result adds 1 to the
// denominator and multiplies the numerator by 2^256.
func CalcWork(bits uint32) *big.Int {
	// Return a work value of zero if the passed difficulty bits represent
	// a negative number. Note this should not happen in practice with valid
	// blocks, but an invalid block could trigger it.
	difficultyNum := CompactToBig(bits)
	if difficultyNum.Sign() <= 0 {
		return big.NewInt(0)
	}

	// (1 << 256) / (difficultyNum + 1)
	denominator := new(big.Int).Add(difficultyNum, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}

// lastBlockOfKind walks the chain backwards from the given node and returns
// the most recent block of the requested kind. Proof of work and proof of
// stake blocks retarget independently. The walk stops at the genesis block
// regardless of its kind, mirroring the reference behavior.
func lastBlockOfKind(node *blockNode, proofOfStake bool) *blockNode {
	for node != nil && node.parent != nil && node.proofOfStake != proofOfStake {
		node = node.parent
	}
	return node
}

// calcNextRequiredDifficulty calculates the required difficulty for the block
// after the passed previous block node for the given kind of block.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) calcNextRequiredDifficulty(lastNode *blockNode, proofOfStake bool) uint32 {
	targetLimit := b.chainParams.PowLimit
	if proofOfStake {
		targetLimit = b.chainParams.PosLimit
	}

	// Genesis block.
	if lastNode == nil {
		return BigToCompact(targetLimit)
	}

	prevNode := lastBlockOfKind(lastNode, proofOfStake)

	// Test networks never retarget, the previous target simply carries
	// forward.
	if b.chainParams.NoRetargeting {
		return prevNode.bits
	}

	// The first and second blocks of a kind start from the limit.
	if prevNode.parent == nil {
		return BigToCompact(targetLimit)
	}
	prevPrevNode := lastBlockOfKind(prevNode.parent, proofOfStake)
	if prevPrevNode.parent == nil {
		return BigToCompact(targetLimit)
	}

	targetTimespan := int64(b.chainParams.TargetTimespan / time.Second)

	actualSpacing := prevNode.timestamp - prevPrevNode.timestamp
	if actualSpacing < 0 {
		actualSpacing = 1
	} else if actualSpacing > targetTimespan {
		actualSpacing = targetTimespan
	}

	// Retarget every block with an exponential moving average toward the
	// target spacing.
	newTarget := CompactToBig(prevNode.bits)

	targetSpacing := int64(b.chainParams.TargetSpacing / time.Second)
	if prevNode.CalcPastMedianTime().After(b.chainParams.ServiceUpgradeForkTime) {
		targetSpacing = serviceForkTargetSpacing
	}

	var spacing int64
	if proofOfStake {
		spacing = targetSpacing
	} else {
		// Proof of work spacing stretches with the distance to the
		// last mined block, capped at three target intervals.
		spacing = targetSpacing * (1 + int64(lastNode.height) - int64(prevNode.height))
		if maxSpacing := 3 * targetSpacing; spacing > maxSpacing {
			spacing = maxSpacing
		}
	}

	interval := targetTimespan / spacing
	newTarget.Mul(newTarget, big.NewInt((interval-1)*spacing+actualSpacing+actualSpacing))
	newTarget.Div(newTarget, big.NewInt((interval+1)*spacing))

	if newTarget.Cmp(targetLimit) > 0 {
		newTarget.Set(targetLimit)
	}

	return BigToCompact(newTarget)
}

// CalcNextRequiredDifficulty calculates the required difficulty for the block
// after the end of the current best chain for the given kind of block.
//
// This function is safe for concurrent access.
func (b *ChainState) CalcNextRequiredDifficulty(proofOfStake bool) uint32 {
	b.chainLock.Lock()
	difficulty := b.calcNextRequiredDifficulty(b.bestChain.Tip(), proofOfStake)
	b.chainLock.Unlock()
	return difficulty
}

// checkProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the block hash is less than the
// target difficulty as claimed.
func checkProofOfWork(header *wire.BlockHeader, powLimit *big.Int) error {
	// The target difficulty must be larger than zero.
	target := CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		str := fmt.Sprintf("block target difficulty of %064x is too low",
			target)
		return dosError(50, RejectInvalid, "high-hash", str)
	}

	// The target difficulty must be less than the maximum allowed.
	if target.Cmp(powLimit) > 0 {
		str := fmt.Sprintf("block target difficulty of %064x is "+
			"higher than max of %064x", target, powLimit)
		return dosError(50, RejectInvalid, "high-hash", str)
	}

	// The block hash must be less than the claimed target.
	hash := header.BlockHash()
	hashNum := HashToBig(&hash)
	if hashNum.Cmp(target) > 0 {
		str := fmt.Sprintf("block hash of %064x is higher than "+
			"expected max of %064x", hashNum, target)
		return dosError(50, RejectInvalid, "high-hash", str)
	}

	return nil
}
