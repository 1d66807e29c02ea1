// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// RejectCode represents a coarse category for a rejected transaction or
// block. The codes match the historical wire-level reject codes so callers
// relaying rejection upstream do not need to translate.
type RejectCode uint8

// These constants define the various supported reject codes.
const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

// Map of reject codes back strings for pretty printing.
var rejectCodeStrings = map[RejectCode]string{
	RejectMalformed:       "REJECT_MALFORMED",
	RejectInvalid:         "REJECT_INVALID",
	RejectObsolete:        "REJECT_OBSOLETE",
	RejectDuplicate:       "REJECT_DUPLICATE",
	RejectNonstandard:     "REJECT_NONSTANDARD",
	RejectDust:            "REJECT_DUST",
	RejectInsufficientFee: "REJECT_INSUFFICIENTFEE",
	RejectCheckpoint:      "REJECT_CHECKPOINT",
}

// String returns the RejectCode in human-readable form.
func (code RejectCode) String() string {
	if s, ok := rejectCodeStrings[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown RejectCode (%d)", uint8(code))
}

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block or transaction failed due to one of the many
// validation rules. The caller can use type assertions to determine if a
// failure was specifically due to a rule violation and use the BanScore field
// to decide how severely to penalize the peer that relayed the offending
// data.
type RuleError struct {
	RejectCode  RejectCode // The preferred code to use for reject messages
	Reason      string     // Machine-readable rejection reason
	Description string     // Human readable description of the issue

	// BanScore is the misbehavior score the relaying peer earns for this
	// violation. A zero score marks violations that honest peers can
	// trigger, for example relaying a transaction with a policy issue.
	BanScore int
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.Description != "" {
		return e.Reason + ": " + e.Description
	}
	return e.Reason
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(code RejectCode, reason string, desc string) RuleError {
	return RuleError{RejectCode: code, Reason: reason, Description: desc}
}

// dosError creates a RuleError that additionally carries a ban score for the
// relaying peer.
func dosError(banScore int, code RejectCode, reason string, desc string) RuleError {
	return RuleError{RejectCode: code, Reason: reason, Description: desc, BanScore: banScore}
}

// ErrorBanScore returns the ban score carried by a rule error, or zero when
// the error is not a rule violation.
func ErrorBanScore(err error) int {
	if rerr, ok := err.(RuleError); ok {
		return rerr.BanScore
	}
	return 0
}

// IsRuleError returns whether err is a RuleError.
func IsRuleError(err error) bool {
	_, ok := err.(RuleError)
	return ok
}

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// assertError creates an AssertError for the given description.
func assertError(desc string) AssertError {
	return AssertError(desc)
}
