// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/eccnet/eccd/database"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// The database layout uses single-byte key prefixes carried over from the
// reference implementation:
//
//   'b' + block hash      -> block index entry
//   'f' + file number     -> block file information
//   'l'                   -> number of the last block file
//   'c' + outpoint        -> unspent transaction output
//   'B'                   -> hash of the block the utxo set is consistent with
var (
	blockIndexKeyPrefix = []byte("b")
	fileInfoKeyPrefix   = []byte("f")
	lastFileKey         = []byte("l")
	utxoKeyPrefix       = []byte("c")
	utxoSetStateKey     = []byte("B")
)

// blockIndexKey returns the database key for the block index entry of the
// given block hash.
func blockIndexKey(hash *chainhash.Hash) []byte {
	key := make([]byte, 0, len(blockIndexKeyPrefix)+chainhash.HashSize)
	key = append(key, blockIndexKeyPrefix...)
	key = append(key, hash[:]...)
	return key
}

// fileInfoKey returns the database key for the file information entry of the
// given block file number.
func fileInfoKey(fileNum int32) []byte {
	key := make([]byte, len(fileInfoKeyPrefix)+4)
	copy(key, fileInfoKeyPrefix)
	binary.LittleEndian.PutUint32(key[len(fileInfoKeyPrefix):], uint32(fileNum))
	return key
}

// utxoKey returns the database key for the utxo entry of the given outpoint.
func utxoKey(outpoint wire.OutPoint) []byte {
	key := make([]byte, 0, len(utxoKeyPrefix)+chainhash.HashSize+4)
	key = append(key, utxoKeyPrefix...)
	key = append(key, outpoint.Hash[:]...)
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], outpoint.Index)
	key = append(key, idx[:]...)
	return key
}

// -----------------------------------------------------------------------------
// The block index entry consists of the serialized block header followed by
// the node state:
//
//   <header><status><numTx><file><dataPos><undoPos><moneySupply><stake flag>
//
// All integers are little endian.
// -----------------------------------------------------------------------------

// blockIndexEntrySize is the serialized size of a block index entry.
const blockIndexEntrySize = 80 + 1 + 4 + 4 + 4 + 4 + 8 + 1

// serializeBlockIndexEntry serializes the passed block node into a byte slice
// suitable for storage in the database.
func serializeBlockIndexEntry(node *blockNode) ([]byte, error) {
	w := bytes.NewBuffer(make([]byte, 0, blockIndexEntrySize))
	header := node.Header()
	if err := header.Serialize(w); err != nil {
		return nil, err
	}

	var buf [26]byte
	buf[0] = byte(node.status)
	byteOrder.PutUint32(buf[1:5], node.numTx)
	byteOrder.PutUint32(buf[5:9], uint32(node.file))
	byteOrder.PutUint32(buf[9:13], node.dataPos)
	byteOrder.PutUint32(buf[13:17], node.undoPos)
	byteOrder.PutUint64(buf[17:25], uint64(node.moneySupply))
	if node.proofOfStake {
		buf[25] = 1
	}
	w.Write(buf[:])

	return w.Bytes(), nil
}

// deserializeBlockIndexEntry parses the passed serialized block index entry
// into a block header and the remaining node state. The parent pointer,
// height, and cumulative values are resolved by the caller while linking the
// index.
func deserializeBlockIndexEntry(serialized []byte) (*wire.BlockHeader, blockStatus, uint32, int32, uint32, uint32, int64, bool, error) {
	if len(serialized) < blockIndexEntrySize {
		return nil, 0, 0, 0, 0, 0, 0, false,
			errors.Errorf("corrupt block index entry: %d bytes", len(serialized))
	}

	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(serialized[:80])); err != nil {
		return nil, 0, 0, 0, 0, 0, 0, false, err
	}

	buf := serialized[80:]
	status := blockStatus(buf[0])
	numTx := byteOrder.Uint32(buf[1:5])
	file := int32(byteOrder.Uint32(buf[5:9]))
	dataPos := byteOrder.Uint32(buf[9:13])
	undoPos := byteOrder.Uint32(buf[13:17])
	moneySupply := int64(byteOrder.Uint64(buf[17:25]))
	proofOfStake := buf[25] != 0

	return &header, status, numTx, file, dataPos, undoPos, moneySupply, proofOfStake, nil
}

// byteOrder is the preferred byte order used for serializing numeric fields
// for storage in the database.
var byteOrder = binary.LittleEndian

// -----------------------------------------------------------------------------
// The block file information tracks per-file statistics used by the block
// file allocator:
//
//   <blockCount><size><undoSize><heightFirst><heightLast><timeFirst><timeLast>
// -----------------------------------------------------------------------------

// blockFileInfo tracks the contents of a single block file.
type blockFileInfo struct {
	blockCount  uint32
	size        uint32
	undoSize    uint32
	heightFirst int32
	heightLast  int32
	timeFirst   uint64
	timeLast    uint64
}

// addBlock updates the statistics to account for a block of the given height
// and time being stored in the file.
func (info *blockFileInfo) addBlock(height int32, timestamp uint64) {
	if info.blockCount == 0 || height < info.heightFirst {
		info.heightFirst = height
	}
	if info.blockCount == 0 || timestamp < info.timeFirst {
		info.timeFirst = timestamp
	}
	info.blockCount++
	if height > info.heightLast {
		info.heightLast = height
	}
	if timestamp > info.timeLast {
		info.timeLast = timestamp
	}
}

// blockFileInfoSize is the serialized size of a block file information entry.
const blockFileInfoSize = 4 + 4 + 4 + 4 + 4 + 8 + 8

// serializeBlockFileInfo serializes the passed block file information into a
// byte slice suitable for storage in the database.
func serializeBlockFileInfo(info *blockFileInfo) []byte {
	serialized := make([]byte, blockFileInfoSize)
	byteOrder.PutUint32(serialized[0:4], info.blockCount)
	byteOrder.PutUint32(serialized[4:8], info.size)
	byteOrder.PutUint32(serialized[8:12], info.undoSize)
	byteOrder.PutUint32(serialized[12:16], uint32(info.heightFirst))
	byteOrder.PutUint32(serialized[16:20], uint32(info.heightLast))
	byteOrder.PutUint64(serialized[20:28], info.timeFirst)
	byteOrder.PutUint64(serialized[28:36], info.timeLast)
	return serialized
}

// deserializeBlockFileInfo parses the passed serialized block file
// information.
func deserializeBlockFileInfo(serialized []byte) (*blockFileInfo, error) {
	if len(serialized) < blockFileInfoSize {
		return nil, errors.Errorf("corrupt block file info: %d bytes",
			len(serialized))
	}

	return &blockFileInfo{
		blockCount:  byteOrder.Uint32(serialized[0:4]),
		size:        byteOrder.Uint32(serialized[4:8]),
		undoSize:    byteOrder.Uint32(serialized[8:12]),
		heightFirst: int32(byteOrder.Uint32(serialized[12:16])),
		heightLast:  int32(byteOrder.Uint32(serialized[16:20])),
		timeFirst:   byteOrder.Uint64(serialized[20:28]),
		timeLast:    byteOrder.Uint64(serialized[28:36]),
	}, nil
}

// dbFetchBlockFileInfo fetches the block file information for the given file
// number. It returns nil when no entry exists.
func dbFetchBlockFileInfo(db database.Database, fileNum int32) (*blockFileInfo, error) {
	serialized, err := db.Get(fileInfoKey(fileNum))
	if err != nil {
		return nil, err
	}
	if serialized == nil {
		return nil, nil
	}
	return deserializeBlockFileInfo(serialized)
}

// dbFetchLastFileNum fetches the number of the most recent block file. It
// returns zero when no entry exists yet.
func dbFetchLastFileNum(db database.Database) (int32, error) {
	serialized, err := db.Get(lastFileKey)
	if err != nil {
		return 0, err
	}
	if len(serialized) < 4 {
		return 0, nil
	}
	return int32(byteOrder.Uint32(serialized)), nil
}

// serializeLastFileNum serializes the number of the most recent block file.
func serializeLastFileNum(fileNum int32) []byte {
	serialized := make([]byte, 4)
	byteOrder.PutUint32(serialized, uint32(fileNum))
	return serialized
}

// -----------------------------------------------------------------------------
// Each unspent transaction output is stored as:
//
//   <amount><height><time><flags><script length><script>
//
// The flags byte packs the coinbase and coinstake markers.
// -----------------------------------------------------------------------------

const (
	utxoFlagCoinBase  = 1 << 0
	utxoFlagCoinStake = 1 << 1
)

// serializeUtxoEntry serializes the passed unspent transaction output into a
// byte slice suitable for storage in the database. An error is returned for
// a spent entry since those are deleted rather than written.
func serializeUtxoEntry(entry *UtxoEntry) ([]byte, error) {
	if entry.IsSpent() {
		return nil, assertError("attempt to serialize spent utxo entry")
	}

	w := bytes.NewBuffer(make([]byte, 0, 17+
		wire.VarIntSerializeSize(uint64(len(entry.pkScript)))+
		len(entry.pkScript)))

	var buf [17]byte
	byteOrder.PutUint64(buf[0:8], uint64(entry.amount))
	byteOrder.PutUint32(buf[8:12], uint32(entry.blockHeight))
	byteOrder.PutUint32(buf[12:16], entry.blockTime)
	if entry.IsCoinBase() {
		buf[16] |= utxoFlagCoinBase
	}
	if entry.IsCoinStake() {
		buf[16] |= utxoFlagCoinStake
	}
	w.Write(buf[:])

	if err := wire.WriteVarBytes(w, entry.pkScript); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// deserializeUtxoEntry decodes a utxo entry from the passed serialized byte
// slice into a new UtxoEntry.
func deserializeUtxoEntry(serialized []byte) (*UtxoEntry, error) {
	if len(serialized) < 17 {
		return nil, errors.Errorf("corrupt utxo entry: %d bytes",
			len(serialized))
	}

	entry := &UtxoEntry{
		amount:      int64(byteOrder.Uint64(serialized[0:8])),
		blockHeight: int32(byteOrder.Uint32(serialized[8:12])),
		blockTime:   byteOrder.Uint32(serialized[12:16]),
	}
	if serialized[16]&utxoFlagCoinBase != 0 {
		entry.packedFlags |= tfCoinBase
	}
	if serialized[16]&utxoFlagCoinStake != 0 {
		entry.packedFlags |= tfCoinStake
	}

	r := bytes.NewReader(serialized[17:])
	script, err := wire.ReadVarBytes(r, maxScriptAllowedSize, "utxo script")
	if err != nil {
		return nil, err
	}
	entry.pkScript = script
	return entry, nil
}

// maxScriptAllowedSize is a sanity bound on stored script sizes.
const maxScriptAllowedSize = 1024 * 1024

// dbFetchUtxoEntry uses an existing database connection to fetch the
// specified transaction output from the utxo set. It returns nil when there
// is no entry.
func dbFetchUtxoEntry(db database.Database, outpoint wire.OutPoint) (*UtxoEntry, error) {
	serialized, err := db.Get(utxoKey(outpoint))
	if err != nil {
		return nil, err
	}
	if serialized == nil {
		return nil, nil
	}
	return deserializeUtxoEntry(serialized)
}

// dbFetchUtxoSetState fetches the hash of the block the stored utxo set is
// consistent with. It returns nil when the state has never been written.
func dbFetchUtxoSetState(db database.Database) (*chainhash.Hash, error) {
	serialized, err := db.Get(utxoSetStateKey)
	if err != nil {
		return nil, err
	}
	if serialized == nil {
		return nil, nil
	}
	return chainhash.NewHash(serialized)
}

// -----------------------------------------------------------------------------
// The undo payload for a block is the list of outputs it spent in spend
// order. Replaying it in reverse restores the utxo set to the state before
// the block connected.
// -----------------------------------------------------------------------------

// serializeSpentTxOuts serializes the passed slice of spent outputs into the
// undo payload for a block.
func serializeSpentTxOuts(stxos []SpentTxOut) ([]byte, error) {
	w := &bytes.Buffer{}
	if err := wire.WriteVarInt(w, uint64(len(stxos))); err != nil {
		return nil, err
	}
	for i := range stxos {
		stxo := &stxos[i]
		var buf [17]byte
		byteOrder.PutUint64(buf[0:8], uint64(stxo.Amount))
		byteOrder.PutUint32(buf[8:12], uint32(stxo.Height))
		byteOrder.PutUint32(buf[12:16], stxo.Time)
		if stxo.IsCoinBase {
			buf[16] |= utxoFlagCoinBase
		}
		if stxo.IsCoinStake {
			buf[16] |= utxoFlagCoinStake
		}
		w.Write(buf[:])
		if err := wire.WriteVarBytes(w, stxo.PkScript); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// deserializeSpentTxOuts decodes the undo payload for a block back into the
// slice of spent outputs.
func deserializeSpentTxOuts(serialized []byte) ([]SpentTxOut, error) {
	r := bytes.NewReader(serialized)
	count, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	// Every spent output occupies at least 18 bytes, so a count beyond
	// that bound means the payload is corrupt.
	if count > uint64(len(serialized))/18 {
		return nil, errors.Errorf("corrupt undo payload: %d entries in "+
			"%d bytes", count, len(serialized))
	}

	stxos := make([]SpentTxOut, count)
	for i := uint64(0); i < count; i++ {
		var buf [17]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		stxo := &stxos[i]
		stxo.Amount = int64(byteOrder.Uint64(buf[0:8]))
		stxo.Height = int32(byteOrder.Uint32(buf[8:12]))
		stxo.Time = byteOrder.Uint32(buf[12:16])
		stxo.IsCoinBase = buf[16]&utxoFlagCoinBase != 0
		stxo.IsCoinStake = buf[16]&utxoFlagCoinStake != 0
		stxo.PkScript, err = wire.ReadVarBytes(r, maxScriptAllowedSize,
			"undo script")
		if err != nil {
			return nil, err
		}
	}
	return stxos, nil
}

// dbFetchBlockIndexEntry fetches the serialized block index entry for the
// given hash. It returns nil when there is no entry.
func dbFetchBlockIndexEntry(db database.Database, hash *chainhash.Hash) ([]byte, error) {
	return db.Get(blockIndexKey(hash))
}
