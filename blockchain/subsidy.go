package blockchain

import (
	"strconv"

	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
)

const (
	// baseProofOfWorkSubsidy is the fixed component of the mined block
	// reward during the proof of work era.
	baseProofOfWorkSubsidy = 100000 * util.SatoshiPerCoin

	// minSubsidy is the mined block reward once the proof of work era has
	// ended.
	minSubsidy = 1 * util.SatoshiPerCoin

	// premineSubsidy is the reward of block 1. The reference
	// implementation computes 0.0099 of the legacy supply ceiling in
	// floating point and truncates, which lands 8 satoshi above the round
	// number. The exact value is consensus.
	premineSubsidy = 49500000000000008

	// powSubsidyBonusRange is the upper bound, in whole coins, of the
	// pseudo-random bonus added to mined block rewards.
	powSubsidyBonusRange = 200000

	// maxMintProofOfStake is the reference point for the elevated stake
	// reward rate used between heights 500000 and 1005000.
	maxMintProofOfStake = 1 * util.SatoshiPerCoin

	// stakeRewardCoinYear is the annual stake reward rate, 25 cents per
	// coin-year, used outside the elevated window.
	stakeRewardCoinYear = 25 * util.SatoshiPerCent

	// yearlyBlockCount approximates the number of blocks staked per year
	// and scales coin age into coin years.
	yearlyBlockCount = 700800

	// Heights bounding the elevated stake reward window.
	elevatedStakeRewardStart = 500000
	elevatedStakeRewardEnd   = 1005000
)

// CalcProofOfWorkSubsidy returns the reward for a mined block at the given
// height, excluding fees. Block 1 carries the premine. Beyond the subsidy
// cutoff height only the minimum subsidy remains. All other heights earn the
// base subsidy plus a pseudo-random bonus of up to 200000 coins seeded from
// the previous block hash, so every node derives the same reward.
func CalcProofOfWorkSubsidy(height int32, prevHash *chainhash.Hash, subsidyHalvingHeight int32) int64 {
	if height == 1 {
		return premineSubsidy
	}
	if height > subsidyHalvingHeight {
		return minSubsidy
	}

	subsidy := int64(baseProofOfWorkSubsidy)
	subsidy += int64(subsidyBonus(prevHash)) * util.SatoshiPerCoin
	return subsidy
}

// subsidyBonus derives the pseudo-random component of the mined block reward
// from the previous block hash. Seven hex digits of the printed hash form the
// generator seed.
func subsidyBonus(prevHash *chainhash.Hash) uint32 {
	seedStr := prevHash.String()[15:22]
	seed, err := strconv.ParseUint(seedStr, 16, 32)
	if err != nil {
		// The printed form of a hash is always valid hex.
		panic(assertError("block hash yielded invalid subsidy seed: " + seedStr))
	}

	return newMersenneTwister(uint32(seed)).uniform(powSubsidyBonusRange)
}

// CalcProofOfStakeReward returns the reward for the given coin age, in
// coin-days, destroyed by a coinstake at the given height. moneySupply is the
// supply recorded at the current best tip. Once the supply ceiling is reached
// no further coins are minted, and near the ceiling the reward is clipped so
// the supply stops exactly at the ceiling.
func CalcProofOfStakeReward(coinAge int64, height int32, moneySupply int64) int64 {
	if moneySupply == util.MaxSatoshi {
		return 0
	}

	if height > elevatedStakeRewardStart && height < elevatedStakeRewardEnd {
		// The reference implementation compares the supply counted in
		// whole coins against the ceiling counted in satoshi here, so
		// in practice the elevated rate never clips. The comparison is
		// reproduced as-is because the rate it yields is consensus.
		rewardCoinYear := int64(5) * maxMintProofOfStake / 2
		nextMoney := moneySupply/util.SatoshiPerCoin + rewardCoinYear
		if nextMoney > util.MaxSatoshi {
			rewardCoinYear = util.MaxSatoshi
		}
		if nextMoney == util.MaxSatoshi {
			rewardCoinYear = 0
		}
		return coinAge * rewardCoinYear / 365
	}

	subsidy := coinAge * stakeRewardCoinYear / 365
	if height >= elevatedStakeRewardEnd {
		if nextMoney := moneySupply + subsidy; nextMoney > util.MaxSatoshi {
			subsidy -= nextMoney - util.MaxSatoshi
		}
	}
	return subsidy
}
