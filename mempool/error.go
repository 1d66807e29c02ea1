// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/pkg/errors"

	"github.com/eccnet/eccd/blockchain"
)

// RuleError identifies a rule violation. It is used to indicate that
// processing of a transaction failed due to one of the many validation
// rules. The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and use the Err field to access the
// underlying error, which will be either a TxRuleError or a
// blockchain.RuleError.
type RuleError struct {
	Err error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.Err == nil {
		return "<nil>"
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped TxRuleError or blockchain.RuleError.
func (e RuleError) Unwrap() error {
	return e.Err
}

// TxRuleError identifies a rule violation related to a transaction. It is
// used to indicate that processing of a transaction failed due to one of the
// many validation rules.
type TxRuleError struct {
	// RejectCode is the corresponding rejection code to send when
	// reporting the error via 'reject' wire protocol messages.
	RejectCode blockchain.RejectCode

	// Reason is the short machine-readable rejection reason.
	Reason string

	// Description is an additional human-readable description of the
	// issue.
	Description string

	// BanScore is how heavily a peer relaying the offending transaction
	// should be penalized.
	BanScore int
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	if e.Description == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Description
}

// txRuleError creates an underlying TxRuleError with the given set of
// arguments and returns a RuleError that encapsulates it.
func txRuleError(c blockchain.RejectCode, reason, desc string) RuleError {
	return RuleError{
		Err: TxRuleError{RejectCode: c, Reason: reason, Description: desc},
	}
}

// txDosError is like txRuleError for violations that additionally penalize
// the relaying peer.
func txDosError(banScore int, c blockchain.RejectCode, reason, desc string) RuleError {
	return RuleError{
		Err: TxRuleError{
			RejectCode:  c,
			Reason:      reason,
			Description: desc,
			BanScore:    banScore,
		},
	}
}

// chainRuleError returns a RuleError that encapsulates the given
// blockchain.RuleError.
func chainRuleError(chainErr blockchain.RuleError) RuleError {
	return RuleError{Err: chainErr}
}

// IsTxRuleError returns whether err is a RuleError.
func IsTxRuleError(err error) bool {
	var ruleErr RuleError
	return errors.As(err, &ruleErr)
}

// ErrorReason returns the machine-readable rejection reason carried by the
// given error, or the empty string when it carries none.
func ErrorReason(err error) string {
	var txRuleErr TxRuleError
	if errors.As(err, &txRuleErr) {
		return txRuleErr.Reason
	}
	var chainRuleErr blockchain.RuleError
	if errors.As(err, &chainRuleErr) {
		return chainRuleErr.Reason
	}
	return ""
}
