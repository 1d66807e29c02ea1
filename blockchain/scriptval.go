// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"runtime"

	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/wire"
)

// ScriptFlags selects which script verification rule set applies.
type ScriptFlags uint32

const (
	// ScriptVerifyMandatory applies only the consensus-mandatory script
	// rules. A transaction failing these is invalid no matter how it
	// arrived.
	ScriptVerifyMandatory ScriptFlags = 1 << iota

	// ScriptVerifyStandard additionally applies the standardness rules
	// used for mempool acceptance.
	ScriptVerifyStandard
)

// ScriptVerifier abstracts the script engine. The chain state calls out
// through it for script execution, signature operation counting, and block
// signature checks, keeping the interpreter itself outside the consensus
// package.
type ScriptVerifier interface {
	// VerifyTxIn executes the script pair of the given input against the
	// output entry it spends under the given rule set.
	VerifyTxIn(tx *util.Tx, txInIdx int, entry *UtxoEntry, flags ScriptFlags) error

	// GetLegacySigOpCount counts the signature operations in all input
	// and output scripts of the transaction.
	GetLegacySigOpCount(tx *util.Tx) int

	// GetP2SHSigOpCount counts the signature operations in the
	// pay-to-script-hash redeem scripts the transaction's inputs carry.
	// The view must contain the spent entries.
	GetP2SHSigOpCount(tx *util.Tx, view *UtxoViewpoint) (int, error)

	// VerifyBlockSignature checks the signature a staked block carries
	// against the key of its coinstake. Mined blocks with an empty
	// signature pass.
	VerifyBlockSignature(block *wire.MsgBlock) error
}

// txValidateItem holds a transaction along with which input is to be
// validated.
type txValidateItem struct {
	txInIndex int
	txIn      *wire.TxIn
	tx        *util.Tx
}

// txValidator provides a type which asynchronously validates transaction
// inputs. It provides several channels for communication and a processing
// function that is intended to be in run multiple goroutines.
type txValidator struct {
	validateChan chan *txValidateItem
	quitChan     chan struct{}
	resultChan   chan error
	view         *UtxoViewpoint
	flags        ScriptFlags
	verifier     ScriptVerifier
}

// sendResult sends the result of a script pair validation on the internal
// result channel while respecting the quit channel. This allows orderly
// shutdown when the validation process is aborted early due to a validation
// error in one of the other goroutines.
func (v *txValidator) sendResult(result error) {
	select {
	case v.resultChan <- result:
	case <-v.quitChan:
	}
}

// validateHandler consumes items to validate from the internal validate
// channel and returns the result of the validation on the internal result
// channel. It must be run as a goroutine.
func (v *txValidator) validateHandler() {
out:
	for {
		select {
		case txVI := <-v.validateChan:
			// Ensure the referenced input utxo is available.
			txIn := txVI.txIn
			entry := v.view.LookupEntry(txIn.PreviousOutPoint)
			if entry == nil || entry.IsSpent() {
				str := fmt.Sprintf("unable to find unspent "+
					"output %v referenced from "+
					"transaction %s:%d",
					txIn.PreviousOutPoint, txVI.tx.Hash(),
					txVI.txInIndex)
				err := ruleError(RejectInvalid,
					"bad-txns-inputs-missingorspent", str)
				v.sendResult(err)
				break out
			}

			err := v.verifier.VerifyTxIn(txVI.tx, txVI.txInIndex,
				entry, v.flags)
			if err != nil {
				v.sendResult(err)
				break out
			}

			// Validation succeeded.
			v.sendResult(nil)

		case <-v.quitChan:
			break out
		}
	}
}

// Validate validates the scripts for all of the passed transaction inputs
// using multiple goroutines.
func (v *txValidator) Validate(items []*txValidateItem) error {
	if len(items) == 0 {
		return nil
	}

	// Limit the number of goroutines to do script validation based on the
	// number of processor cores. This helps ensure the system stays
	// reasonably responsive under heavy load.
	maxGoRoutines := runtime.NumCPU() * 3
	if maxGoRoutines <= 0 {
		maxGoRoutines = 1
	}
	if maxGoRoutines > len(items) {
		maxGoRoutines = len(items)
	}

	// Start up validation handlers that are used to asynchronously
	// validate each transaction input.
	for i := 0; i < maxGoRoutines; i++ {
		go v.validateHandler()
	}

	// Validate each of the inputs. The quit channel is closed when any
	// errors occur so all processing goroutines exit regardless of which
	// input had the validation error.
	numInputs := len(items)
	currentItem := 0
	processedItems := 0
	for processedItems < numInputs {
		// Only send items while there are still items that need to
		// be processed. The select statement will never select a nil
		// channel.
		var validateChan chan *txValidateItem
		var item *txValidateItem
		if currentItem < numInputs {
			validateChan = v.validateChan
			item = items[currentItem]
		}

		select {
		case validateChan <- item:
			currentItem++

		case err := <-v.resultChan:
			processedItems++
			if err != nil {
				close(v.quitChan)
				return err
			}
		}
	}

	close(v.quitChan)
	return nil
}

// newTxValidator returns a new instance of txValidator to be used for
// validating transaction scripts asynchronously.
func newTxValidator(view *UtxoViewpoint, flags ScriptFlags, verifier ScriptVerifier) *txValidator {
	return &txValidator{
		validateChan: make(chan *txValidateItem),
		quitChan:     make(chan struct{}),
		resultChan:   make(chan error),
		view:         view,
		flags:        flags,
		verifier:     verifier,
	}
}

// ValidateTransactionScripts validates the scripts for the passed transaction
// using multiple goroutines.
func ValidateTransactionScripts(tx *util.Tx, view *UtxoViewpoint, flags ScriptFlags, verifier ScriptVerifier) error {
	// Collect all of the transaction inputs and required information for
	// validation.
	txIns := tx.MsgTx().TxIn
	txValItems := make([]*txValidateItem, 0, len(txIns))
	for txInIdx, txIn := range txIns {
		txVI := &txValidateItem{
			txInIndex: txInIdx,
			txIn:      txIn,
			tx:        tx,
		}
		txValItems = append(txValItems, txVI)
	}

	// Validate all of the inputs.
	validator := newTxValidator(view, flags, verifier)
	return validator.Validate(txValItems)
}

// checkBlockScripts executes and validates the scripts for all transactions
// in the passed block using multiple goroutines.
func checkBlockScripts(block *util.Block, view *UtxoViewpoint, flags ScriptFlags, verifier ScriptVerifier) error {
	// Collect all of the transaction inputs and required information for
	// validation for all transactions in the block into a single slice.
	numInputs := 0
	for _, tx := range block.Transactions() {
		numInputs += len(tx.MsgTx().TxIn)
	}
	txValItems := make([]*txValidateItem, 0, numInputs)
	for _, tx := range block.Transactions() {
		// Skip coinbase transactions.
		if tx.IsCoinBase() {
			continue
		}

		for txInIdx, txIn := range tx.MsgTx().TxIn {
			txVI := &txValidateItem{
				txInIndex: txInIdx,
				txIn:      txIn,
				tx:        tx,
			}
			txValItems = append(txValItems, txVI)
		}
	}

	// Validate all of the inputs.
	validator := newTxValidator(view, flags, verifier)
	return validator.Validate(txValItems)
}
