package blockchain

import (
	"math/big"

	"github.com/eccnet/eccd/util"
)

// stakeMinAge is the minimum age, in seconds, an output must reach before it
// accumulates coin age for staking.
const stakeMinAge = 60 * 60 * 24 * 30

// secondsPerDay converts accumulated coin seconds into coin days.
const secondsPerDay = 60 * 60 * 24

// CalcCoinAge computes the coin age, in coin-days, destroyed by the passed
// transaction. Coin age is the sum over all inputs of value times the time
// the output sat unspent, counted only once the output has reached the
// minimum stake age. The intermediate sum is kept in cent-seconds to avoid
// overflowing 64 bits, matching the reference arithmetic exactly.
//
// The view must contain the entries for all of the transaction's inputs. An
// error is returned when an input is missing or when the transaction claims
// a timestamp earlier than one of its inputs.
func CalcCoinAge(tx *util.Tx, view *UtxoViewpoint) (int64, error) {
	if tx.IsCoinBase() {
		return 0, nil
	}

	txTime := int64(tx.MsgTx().Time)
	centSecond := new(big.Int)
	for _, txIn := range tx.MsgTx().TxIn {
		entry := view.LookupEntry(txIn.PreviousOutPoint)
		if entry == nil || entry.IsSpent() {
			return 0, ruleError(RejectInvalid, "bad-txns-cant-get-coin-age",
				"input "+txIn.PreviousOutPoint.String()+" unavailable")
		}

		coinTime := int64(entry.BlockTime())
		if txTime < coinTime {
			return 0, ruleError(RejectInvalid, "bad-txns-cant-get-coin-age",
				"transaction timestamp earlier than input "+
					txIn.PreviousOutPoint.String())
		}
		if coinTime+stakeMinAge > txTime {
			// The output hasn't aged enough to count.
			continue
		}

		contribution := new(big.Int).SetInt64(entry.Amount())
		contribution.Mul(contribution, big.NewInt(txTime-coinTime))
		contribution.Div(contribution, big.NewInt(util.SatoshiPerCent))
		centSecond.Add(centSecond, contribution)
	}

	coinDay := centSecond
	coinDay.Mul(coinDay, big.NewInt(util.SatoshiPerCent))
	coinDay.Div(coinDay, big.NewInt(util.SatoshiPerCoin))
	coinDay.Div(coinDay, big.NewInt(secondsPerDay))
	return coinDay.Int64(), nil
}
