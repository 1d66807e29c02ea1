// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"
	"time"

	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

var (
	// bigOne is 1 represented as a big.Int. It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a block can
	// have for the main network. It is the value 2^236 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 236), bigOne)

	// mainPosLimit is the highest proof of stake target a block can have
	// for the main network. It is the value 2^236 - 1.
	mainPosLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 236), bigOne)

	// regressionPowLimit is the highest proof of work value a block can
	// have for the regression test network. It is the value 2^255 - 1.
	regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
)

// Checkpoint identifies a known good point in the block chain. Using
// checkpoints allows a few optimizations for old blocks during initial
// download and also prevents forks from old blocks.
//
// Each checkpoint is selected based upon several factors. See the
// documentation for blockchain.IsCheckpointCandidate for details on the
// selection criteria.
type Checkpoint struct {
	Height int32
	Hash   *chainhash.Hash
}

// Params defines a network by its parameters. These parameters may be
// used by applications to differentiate networks as well as addresses
// and keys for one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net [4]byte

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *wire.MsgBlock

	// GenesisHash is the starting block hash.
	GenesisHash *chainhash.Hash

	// PowLimit defines the highest allowed proof of work value for a
	// mined block in compact form.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// mined block in compact form.
	PowLimitBits uint32

	// PosLimit defines the highest allowed target value for a staked
	// block. Proof of work and proof of stake targets retarget
	// independently against their own limit.
	PosLimit *big.Int

	// CoinbaseMaturity is the number of blocks required before newly
	// minted coins, both mined and staked, can be spent. The maturity
	// rule is only enforced above MaturityEnforcementHeight.
	CoinbaseMaturity uint16

	// MaturityEnforcementHeight is the chain height at which spends of
	// immature coinbase and coinstake outputs begin to be rejected.
	MaturityEnforcementHeight int32

	// TargetTimespan is the desired amount of time that should elapse
	// over a full retarget interval. It feeds the exponential moving
	// average retarget calculation.
	TargetTimespan time.Duration

	// TargetSpacing is the desired amount of time to generate each block
	// before the service upgrade fork activates. After activation the
	// spacing is fixed at 150 seconds by consensus.
	TargetSpacing time.Duration

	// ServiceUpgradeForkTime is the median-time-past threshold after
	// which the fixed target spacing applies and version 2 transactions
	// carrying service references become valid.
	ServiceUpgradeForkTime time.Time

	// NoRetargeting defeats the difficulty retargeting so the next
	// required target always echoes the previous block's target. It is
	// only useful on test networks.
	NoRetargeting bool

	// SubsidyHalvingHeight is the height after which the proof of work
	// subsidy drops to the minimum.
	SubsidyHalvingHeight int32

	// BlockEnforceNumRequired is the number of blocks, out of
	// BlockUpgradeNumToCheck, carrying an upgraded version before the
	// associated rule becomes mandatory.
	BlockEnforceNumRequired uint64

	// BlockUpgradeNumToCheck is the number of prior blocks inspected by
	// the supermajority calculation.
	BlockUpgradeNumToCheck uint64

	// Checkpoints ordered from oldest to newest.
	Checkpoints []Checkpoint

	// RelayNonStdTxs defines whether the relay of non-standard
	// transactions should be accepted by default.
	RelayNonStdTxs bool
}

// MainNetParams defines the network parameters for the main network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         [4]byte{0xce, 0xf1, 0xdb, 0xfa},
	DefaultPort: "19118",

	// Chain parameters
	GenesisBlock:              &genesisBlock,
	GenesisHash:               &genesisHash,
	PowLimit:                  mainPowLimit,
	PowLimitBits:              0x1d0fffff,
	PosLimit:                  mainPosLimit,
	CoinbaseMaturity:          30,
	MaturityEnforcementHeight: 1600000,
	TargetTimespan:            time.Hour * 24,
	TargetSpacing:             time.Second * 45,
	ServiceUpgradeForkTime:    time.Unix(1525971600, 0), // 2018-05-10 17:00:00 +0000 UTC
	NoRetargeting:             false,
	SubsidyHalvingHeight:      86400,

	// Consensus rule change deployments.
	BlockEnforceNumRequired: 750,
	BlockUpgradeNumToCheck:  1000,

	Checkpoints: []Checkpoint{
		{5000, newHashFromStr("000000000000d79236b2e2e7f2a1e29af49b0368b57f7491dc0bfa9ee5b8eff4")},
		{100000, newHashFromStr("00000000000124ba5b907a0be057251d7aa32bb33bd840f787e2d9fa01dba811")},
		{500000, newHashFromStr("0000000000008c4a1a9dacb99b7c02048c5a33aad2b618e5b36559b2b3e0f219")},
		{1005000, newHashFromStr("0000000000001e866a8057b6fe7b7c1da39e8c8ab425ad12b0ef3c26fe0ec577")},
	},

	// Policy settings
	RelayNonStdTxs: false,
}

// RegressionNetParams defines the network parameters for the regression test
// network. Not to be confused with the test network, this network is
// sometimes simply called "testnet".
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         [4]byte{0xfa, 0xbf, 0xb5, 0xda},
	DefaultPort: "19444",

	// Chain parameters
	GenesisBlock:              &regTestGenesisBlock,
	GenesisHash:               &regTestGenesisHash,
	PowLimit:                  regressionPowLimit,
	PowLimitBits:              0x207fffff,
	PosLimit:                  regressionPowLimit,
	CoinbaseMaturity:          30,
	MaturityEnforcementHeight: 0,
	TargetTimespan:            time.Hour * 24,
	TargetSpacing:             time.Second * 45,
	ServiceUpgradeForkTime:    time.Unix(0, 0),
	NoRetargeting:             true,
	SubsidyHalvingHeight:      150,

	// Consensus rule change deployments.
	BlockEnforceNumRequired: 75,
	BlockUpgradeNumToCheck:  100,

	Checkpoints: nil,

	// Policy settings
	RelayNonStdTxs: true,
}

// newHashFromStr converts the passed big-endian hex string into a
// chainhash.Hash. It only differs from the one available in chainhash in that
// it panics on an error since it will only (and must only) be called with
// hard-coded, and therefore known good, hashes.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		// Ordinarily I don't like panics in library code since it
		// can take applications down without them having a chance to
		// recover which is extremely annoying, however an exception is
		// being made in this case because the only way this can panic
		// is if there is an error in the hard-coded hashes. Thus it
		// will only ever potentially panic on init and therefore is
		// 100% predictable.
		panic(err)
	}
	return hash
}
