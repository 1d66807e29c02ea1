package blockchain

import (
	"testing"

	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// spendingTx returns a transaction with the given timestamp spending the
// passed outpoints.
func spendingTx(txTime uint32, prevOuts ...wire.OutPoint) *util.Tx {
	msgTx := wire.NewMsgTx(1)
	msgTx.Time = txTime
	for i := range prevOuts {
		msgTx.AddTxIn(wire.NewTxIn(&prevOuts[i], nil))
	}
	msgTx.AddTxOut(wire.NewTxOut(1*util.SatoshiPerCoin, []byte{0x51}))
	return util.NewTx(msgTx)
}

func TestCalcCoinAge(t *testing.T) {
	const day = 60 * 60 * 24

	agedOut := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	youngOut := wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 0}
	missingOut := wire.OutPoint{Hash: chainhash.Hash{0x03}, Index: 0}

	view := NewUtxoViewpoint()
	// An output forty days old, holding a thousand coins.
	view.addTxOut(agedOut, wire.NewTxOut(1000*util.SatoshiPerCoin,
		[]byte{0x51}), false, false, 10, 0)
	// An output well below the minimum stake age.
	view.addTxOut(youngOut, wire.NewTxOut(1000*util.SatoshiPerCoin,
		[]byte{0x51}), false, false, 11, 39*day)

	txTime := uint32(40 * day)

	// A coinbase destroys no coin age.
	coinbase := util.NewTx(&wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
			SignatureScript:  []byte{0x04, 0x31},
		}},
		TxOut: []*wire.TxOut{{Value: 0, PkScript: []byte{0x51}}},
	})
	age, err := CalcCoinAge(coinbase, view)
	if err != nil || age != 0 {
		t.Fatalf("coinbase: got (%d, %v), want (0, nil)", age, err)
	}

	// 1000 coins held for 40 days destroy 40000 coin-days.
	age, err = CalcCoinAge(spendingTx(txTime, agedOut), view)
	if err != nil {
		t.Fatalf("aged input: unexpected error: %v", err)
	}
	if age != 40000 {
		t.Errorf("aged input: got %d coin-days, want 40000", age)
	}

	// An input below the minimum stake age contributes nothing.
	age, err = CalcCoinAge(spendingTx(txTime, youngOut), view)
	if err != nil {
		t.Fatalf("young input: unexpected error: %v", err)
	}
	if age != 0 {
		t.Errorf("young input: got %d coin-days, want 0", age)
	}

	// Mixing the two only counts the aged input.
	age, err = CalcCoinAge(spendingTx(txTime, agedOut, youngOut), view)
	if err != nil {
		t.Fatalf("mixed inputs: unexpected error: %v", err)
	}
	if age != 40000 {
		t.Errorf("mixed inputs: got %d coin-days, want 40000", age)
	}

	// A missing input is an error.
	_, err = CalcCoinAge(spendingTx(txTime, missingOut), view)
	rerr, ok := err.(RuleError)
	if !ok || rerr.Reason != "bad-txns-cant-get-coin-age" {
		t.Errorf("missing input: got %v, want bad-txns-cant-get-coin-age", err)
	}

	// Claiming a timestamp before the input was created is an error.
	_, err = CalcCoinAge(spendingTx(0, youngOut), view)
	rerr, ok = err.(RuleError)
	if !ok || rerr.Reason != "bad-txns-cant-get-coin-age" {
		t.Errorf("early timestamp: got %v, want bad-txns-cant-get-coin-age", err)
	}
}
