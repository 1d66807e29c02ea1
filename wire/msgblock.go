// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/eccnet/eccd/util/chainhash"
)

// defaultTransactionAlloc is the default size used for the backing array
// for transactions. The transaction array will dynamically grow as needed, but
// this figure is intended to provide enough space for the number of
// transactions in the vast majority of blocks without needing to grow the
// backing array multiple times.
const defaultTransactionAlloc = 2048

// MaxBlocksPerMsg is the maximum number of blocks allowed per message.
const MaxBlocksPerMsg = 500

// MaxBlockPayload is the maximum bytes a block message can be in bytes.
const MaxBlockPayload = 1000000

// maxTxPerBlock is the maximum number of transactions that could
// possibly fit into a block.
const maxTxPerBlock = (MaxBlockPayload / minTxPayload) + 1

// MsgBlock implements the Message interface and represents a block message.
// It is used to deliver block and transaction information in response to a
// getdata message for a given block hash.
//
// The Signature field carries the block signature produced by the key that
// signed the block. Proof of work blocks may carry an empty signature.
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgTx
	Signature    []byte
}

// AddTransaction adds a transaction to the message.
func (msg *MsgBlock) AddTransaction(tx *MsgTx) {
	msg.Transactions = append(msg.Transactions, tx)
}

// ClearTransactions removes all transactions from the message.
func (msg *MsgBlock) ClearTransactions() {
	msg.Transactions = make([]*MsgTx, 0, defaultTransactionAlloc)
}

// Deserialize decodes a block from r into the receiver using a format that is
// suitable for long-term storage such as a database.
func (msg *MsgBlock) Deserialize(r io.Reader) error {
	err := readBlockHeader(r, &msg.Header)
	if err != nil {
		return err
	}

	txCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}

	// Prevent more transactions than could possibly fit into a block.
	// It would be possible to cause memory exhaustion and panics without
	// a sane upper bound on this count.
	if txCount > maxTxPerBlock {
		return messageError("MsgBlock.Deserialize", errors.Errorf(
			"too many transactions to fit into a block "+
				"[count %d, max %d]", txCount, maxTxPerBlock))
	}

	msg.Transactions = make([]*MsgTx, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx := MsgTx{}
		err := tx.Deserialize(r)
		if err != nil {
			return err
		}
		msg.Transactions = append(msg.Transactions, &tx)
	}

	msg.Signature, err = ReadVarBytes(r, maxVarBytesLength,
		"block signature")
	return err
}

// Serialize encodes the block to w using a format that is suitable for
// long-term storage such as a database.
func (msg *MsgBlock) Serialize(w io.Writer) error {
	err := writeBlockHeader(w, &msg.Header)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, uint64(len(msg.Transactions)))
	if err != nil {
		return err
	}

	for _, tx := range msg.Transactions {
		err = tx.Serialize(w)
		if err != nil {
			return err
		}
	}

	return WriteVarBytes(w, msg.Signature)
}

// SerializeSize returns the number of bytes it would take to serialize the
// block.
func (msg *MsgBlock) SerializeSize() int {
	// Block header bytes + serialized varint size for the number of
	// transactions + serialized varint size for the length of the block
	// signature + block signature bytes.
	n := blockHeaderLen + VarIntSerializeSize(uint64(len(msg.Transactions))) +
		VarIntSerializeSize(uint64(len(msg.Signature))) + len(msg.Signature)

	for _, tx := range msg.Transactions {
		n += tx.SerializeSize()
	}

	return n
}

// BlockHash computes the block identifier hash for this block.
func (msg *MsgBlock) BlockHash() chainhash.Hash {
	return msg.Header.BlockHash()
}

// IsProofOfStake returns whether the block is staked rather than mined. A
// proof of stake block carries a coinstake transaction at index 1, which is a
// transaction spending at least one input into two or more outputs whose
// first output is empty.
func (msg *MsgBlock) IsProofOfStake() bool {
	return len(msg.Transactions) > 1 && msg.Transactions[1].IsCoinStake()
}

// IsCoinStake determines whether or not a transaction is a coinstake. A
// coinstake is the transaction that commits the staked coins of a proof of
// stake block. It has at least one input and at least two outputs, and its
// first output is required to be empty.
func (msg *MsgTx) IsCoinStake() bool {
	return len(msg.TxIn) > 0 && len(msg.TxOut) >= 2 &&
		!isNullOutPoint(&msg.TxIn[0].PreviousOutPoint) &&
		msg.TxOut[0].IsEmpty()
}

// IsCoinBase determines whether or not a transaction is a coinbase. A
// coinbase is a special transaction created by miners that has exactly one
// input whose previous outpoint is null, meaning a zero hash and a max index.
func (msg *MsgTx) IsCoinBase() bool {
	if len(msg.TxIn) != 1 {
		return false
	}
	return isNullOutPoint(&msg.TxIn[0].PreviousOutPoint)
}

// isNullOutPoint determines whether an outpoint is the null reference used by
// coinbase inputs, a zero hash with the maximum index.
func isNullOutPoint(outpoint *OutPoint) bool {
	if outpoint.Index == 0xffffffff && outpoint.Hash == (chainhash.Hash{}) {
		return true
	}
	return false
}

// TxHashes returns a slice of hashes of all of transactions in this block.
func (msg *MsgBlock) TxHashes() []chainhash.Hash {
	hashList := make([]chainhash.Hash, 0, len(msg.Transactions))
	for _, tx := range msg.Transactions {
		hashList = append(hashList, tx.TxHash())
	}
	return hashList
}

// SignatureHash returns the hash the block signature commits to, which is the
// block header hash.
func (msg *MsgBlock) SignatureHash() chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, blockHeaderLen))
	_ = writeBlockHeader(buf, &msg.Header)
	return chainhash.DoubleHashH(buf.Bytes())
}

// NewMsgBlock returns a new block message that conforms to the
// Message interface. See MsgBlock for details.
func NewMsgBlock(blockHeader *BlockHeader) *MsgBlock {
	return &MsgBlock{
		Header:       *blockHeader,
		Transactions: make([]*MsgTx, 0, defaultTransactionAlloc),
	}
}
