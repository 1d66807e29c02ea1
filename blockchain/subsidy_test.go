package blockchain

import (
	"testing"

	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
)

func TestCalcProofOfWorkSubsidy(t *testing.T) {
	// The seed digits of the printed hash determine the bonus. This hash
	// yields seed 0xace20f6 whose bounded draw is 27827.
	bonusHash, err := chainhash.NewHashFromStr(
		"000000000000000ace20f6000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}

	tests := []struct {
		name     string
		height   int32
		prevHash *chainhash.Hash
		want     int64
	}{
		{"premine", 1, bonusHash, 49500000000000008},
		{"past cutoff", 86401, bonusHash, 1 * util.SatoshiPerCoin},
		{"far past cutoff", 2000000, bonusHash, 1 * util.SatoshiPerCoin},
		{"base plus bonus", 1000, bonusHash,
			(100000 + 27827) * util.SatoshiPerCoin},
	}

	for _, test := range tests {
		got := CalcProofOfWorkSubsidy(test.height, test.prevHash, 86400)
		if got != test.want {
			t.Errorf("%s: got %d, want %d", test.name, got, test.want)
		}
	}
}

func TestCalcProofOfStakeReward(t *testing.T) {
	tests := []struct {
		name        string
		coinAge     int64
		height      int32
		moneySupply int64
		want        int64
	}{
		{"supply at ceiling", 365, 100, util.MaxSatoshi, 0},
		{"one coin year early era", 365, 100, 1000, 25 * util.SatoshiPerCent},
		{"ten coin years early era", 3650, 100, 1000, 250 * util.SatoshiPerCent},
		{"elevated window", 365, 600000, 1000 * util.SatoshiPerCoin,
			250000000},
		{"clip at ceiling", 365, 1500000, util.MaxSatoshi - 10,
			10},
		{"no clip below ceiling", 365, 1500000, 1000,
			25 * util.SatoshiPerCent},
	}

	for _, test := range tests {
		got := CalcProofOfStakeReward(test.coinAge, test.height,
			test.moneySupply)
		if got != test.want {
			t.Errorf("%s: got %d, want %d", test.name, got, test.want)
		}
	}
}

func TestSubsidyBonusSeedDigits(t *testing.T) {
	// The seed is parsed from digits 15 through 21 of the printed hash.
	hash, err := chainhash.NewHashFromStr(
		"000000000000000ace20f6000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}
	if got, want := hash.String()[15:22], "ace20f6"; got != want {
		t.Fatalf("seed digits: got %q, want %q", got, want)
	}
	if got, want := subsidyBonus(hash), newMersenneTwister(0xace20f6).uniform(powSubsidyBonusRange); got != want {
		t.Errorf("subsidyBonus: got %d, want %d", got, want)
	}
}
