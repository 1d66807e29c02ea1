package blockchain

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
)

const (
	// maxBlockFileSize is the maximum size a block file is allowed to
	// grow to before a new file is started.
	maxBlockFileSize uint32 = 128 * 1024 * 1024 // 128 MiB

	// blockFileChunkSize is the granularity block files are preallocated
	// in to avoid constant remapping by the filesystem.
	blockFileChunkSize uint32 = 16 * 1024 * 1024 // 16 MiB

	// undoFileChunkSize is the preallocation granularity for undo files.
	undoFileChunkSize uint32 = 1024 * 1024 // 1 MiB

	// minDiskSpace is the amount of free disk space, beyond the bytes
	// about to be written, required for a write to proceed.
	minDiskSpace uint64 = 50 * 1024 * 1024 // 50 MiB

	// recordHeaderSize is the size of the framing that precedes every
	// stored block or undo payload: the network magic followed by the
	// payload length.
	recordHeaderSize = 8
)

// errOutOfDiskSpace is returned when a block or undo write would leave less
// than the required minimum of free disk space.
var errOutOfDiskSpace = errors.New("out of disk space")

// blockFilePos names a location inside the flat file store. The position
// points at the payload itself, past the framing header.
type blockFilePos struct {
	file int32
	pos  uint32
}

// blockFileStore manages the numbered blk and rev files that hold raw block
// data and undo data. Blocks append to the newest file until it would exceed
// the maximum file size, at which point the store rotates to the next file
// number. Files grow in preallocated chunks so the tail of the active file
// is zero filled.
type blockFileStore struct {
	dir   string
	magic [4]byte

	mtx sync.Mutex

	// lastFileNum is the number of the file currently being appended to.
	lastFileNum int32

	// fileInfo holds the per-file statistics for every file touched since
	// startup, dirtyFileInfo marks the ones with unflushed changes.
	fileInfo      map[int32]*blockFileInfo
	dirtyFileInfo map[int32]struct{}

	// openFiles caches read/write handles per file path.
	openFiles map[string]*os.File
}

// newBlockFileStore returns a block file store rooted at the given directory.
// The directory is created when missing.
func newBlockFileStore(dir string, magic [4]byte) (*blockFileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "failed to create block file directory %s", dir)
	}
	return &blockFileStore{
		dir:           dir,
		magic:         magic,
		fileInfo:      make(map[int32]*blockFileInfo),
		dirtyFileInfo: make(map[int32]struct{}),
		openFiles:     make(map[string]*os.File),
	}, nil
}

// setState primes the store with the last file number and its statistics as
// loaded from the database during startup.
func (s *blockFileStore) setState(lastFileNum int32, info *blockFileInfo) {
	s.mtx.Lock()
	s.lastFileNum = lastFileNum
	if info != nil {
		s.fileInfo[lastFileNum] = info
	}
	s.mtx.Unlock()
}

// blockFilePath returns the path of the numbered block file.
func (s *blockFileStore) blockFilePath(fileNum int32) string {
	return filepath.Join(s.dir, fmt.Sprintf("blk%05d.dat", fileNum))
}

// undoFilePath returns the path of the numbered undo file.
func (s *blockFileStore) undoFilePath(fileNum int32) string {
	return filepath.Join(s.dir, fmt.Sprintf("rev%05d.dat", fileNum))
}

// file returns an open handle for the given path, creating the file when it
// does not exist yet. Handles are cached until the store is closed.
//
// This function MUST be called with the store mutex held.
func (s *blockFileStore) file(path string) (*os.File, error) {
	if file, ok := s.openFiles[path]; ok {
		return file, nil
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	s.openFiles[path] = file
	return file, nil
}

// info returns the statistics entry for the given file, loading it from the
// database on first access and creating a blank entry when the file is new.
//
// This function MUST be called with the store mutex held.
func (s *blockFileStore) info(fileNum int32, load func(int32) (*blockFileInfo, error)) (*blockFileInfo, error) {
	if info, ok := s.fileInfo[fileNum]; ok {
		return info, nil
	}
	var info *blockFileInfo
	if load != nil {
		var err error
		info, err = load(fileNum)
		if err != nil {
			return nil, err
		}
	}
	if info == nil {
		info = &blockFileInfo{}
	}
	s.fileInfo[fileNum] = info
	return info, nil
}

// findBlockPos allocates space for a block of the given serialized size and
// returns the position its payload will occupy. The store rotates to a new
// file when the block would push the active file past the maximum file size,
// and preallocates file space in chunks. The per-file statistics are updated
// for the block's height and time and marked dirty.
func (s *blockFileStore) findBlockPos(blockSize uint32, height int32, timestamp uint64, load func(int32) (*blockFileInfo, error)) (blockFilePos, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	needed := blockSize + recordHeaderSize

	fileNum := s.lastFileNum
	info, err := s.info(fileNum, load)
	if err != nil {
		return blockFilePos{}, err
	}

	// Rotate to the next file when the block doesn't fit.
	for info.size+needed >= maxBlockFileSize {
		fileNum++
		info, err = s.info(fileNum, load)
		if err != nil {
			return blockFilePos{}, err
		}
	}
	if fileNum != s.lastFileNum {
		log.Debugf("Rotating to block file %d", fileNum)
		s.lastFileNum = fileNum
	}

	pos := blockFilePos{file: fileNum, pos: info.size + recordHeaderSize}

	// Grow the file in chunks up to the new size.
	if err := s.allocate(s.blockFilePath(fileNum), info.size+needed, blockFileChunkSize); err != nil {
		return blockFilePos{}, err
	}

	info.size += needed
	info.addBlock(height, timestamp)
	s.dirtyFileInfo[fileNum] = struct{}{}

	return pos, nil
}

// findUndoPos allocates space in the undo file that corresponds to the given
// block file and returns the position the undo payload will occupy.
//
// Undo payloads carry a trailing checksum, the caller includes it in size.
func (s *blockFileStore) findUndoPos(fileNum int32, size uint32) (blockFilePos, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info, err := s.info(fileNum, nil)
	if err != nil {
		return blockFilePos{}, err
	}

	pos := blockFilePos{file: fileNum, pos: info.undoSize + recordHeaderSize}
	needed := size + recordHeaderSize
	if err := s.allocate(s.undoFilePath(fileNum), info.undoSize+needed, undoFileChunkSize); err != nil {
		return blockFilePos{}, err
	}

	info.undoSize += needed
	s.dirtyFileInfo[fileNum] = struct{}{}
	return pos, nil
}

// allocate grows the file at path to cover at least neededSize bytes,
// rounding the allocation up to whole chunks. It fails with
// errOutOfDiskSpace when the volume lacks room for the growth plus the
// safety margin.
//
// This function MUST be called with the store mutex held.
func (s *blockFileStore) allocate(path string, neededSize, chunkSize uint32) error {
	file, err := s.file(path)
	if err != nil {
		return err
	}

	stat, err := file.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}
	currentSize := uint64(stat.Size())
	if currentSize >= uint64(neededSize) {
		return nil
	}

	chunks := (neededSize + chunkSize - 1) / chunkSize
	newSize := uint64(chunks) * uint64(chunkSize)
	if err := checkDiskSpace(s.dir, newSize-currentSize); err != nil {
		return err
	}

	log.Debugf("Preallocating %s to %d bytes", path, newSize)
	if err := file.Truncate(int64(newSize)); err != nil {
		return errors.Wrapf(err, "failed to preallocate %s", path)
	}
	return nil
}

// writeBlock writes the serialized block at the given position. The payload
// is framed by the network magic and its length so files can be rescanned.
func (s *blockFileStore) writeBlock(pos blockFilePos, serializedBlock []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	file, err := s.file(s.blockFilePath(pos.file))
	if err != nil {
		return err
	}
	return writeRecord(file, pos, s.magic, serializedBlock)
}

// readBlock reads the serialized block at the given position.
func (s *blockFileStore) readBlock(pos blockFilePos) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	file, err := s.file(s.blockFilePath(pos.file))
	if err != nil {
		return nil, err
	}
	return readRecord(file, pos, s.magic)
}

// writeUndo writes an undo payload at the given position, appending a
// checksum so torn writes are detected on read.
func (s *blockFileStore) writeUndo(pos blockFilePos, payload []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	file, err := s.file(s.undoFilePath(pos.file))
	if err != nil {
		return err
	}

	checked := make([]byte, 0, len(payload)+4)
	checked = append(checked, payload...)
	var checksum [4]byte
	byteOrder.PutUint32(checksum[:], crc32.ChecksumIEEE(payload))
	checked = append(checked, checksum[:]...)

	return writeRecord(file, pos, s.magic, checked)
}

// readUndo reads the undo payload at the given position and verifies its
// checksum.
func (s *blockFileStore) readUndo(pos blockFilePos) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	file, err := s.file(s.undoFilePath(pos.file))
	if err != nil {
		return nil, err
	}

	checked, err := readRecord(file, pos, s.magic)
	if err != nil {
		return nil, err
	}
	if len(checked) < 4 {
		return nil, errors.Errorf("undo record at %d:%d too short",
			pos.file, pos.pos)
	}
	payload := checked[:len(checked)-4]
	want := byteOrder.Uint32(checked[len(checked)-4:])
	if crc32.ChecksumIEEE(payload) != want {
		return nil, errors.Errorf("undo record at %d:%d failed its "+
			"checksum", pos.file, pos.pos)
	}
	return payload, nil
}

// writeRecord writes the framing header and the payload so the payload
// starts exactly at pos.
func writeRecord(file *os.File, pos blockFilePos, magic [4]byte, payload []byte) error {
	header := make([]byte, recordHeaderSize)
	copy(header, magic[:])
	byteOrder.PutUint32(header[4:], uint32(len(payload)))

	if _, err := file.WriteAt(header, int64(pos.pos)-recordHeaderSize); err != nil {
		return errors.Wrap(err, "failed to write record header")
	}
	if _, err := file.WriteAt(payload, int64(pos.pos)); err != nil {
		return errors.Wrap(err, "failed to write record payload")
	}
	return nil
}

// readRecord reads the record whose payload starts at pos, validating the
// framing first.
func readRecord(file *os.File, pos blockFilePos, magic [4]byte) ([]byte, error) {
	header := make([]byte, recordHeaderSize)
	if _, err := file.ReadAt(header, int64(pos.pos)-recordHeaderSize); err != nil {
		return nil, errors.Wrap(err, "failed to read record header")
	}
	for i := 0; i < 4; i++ {
		if header[i] != magic[i] {
			return nil, errors.Errorf("bad record magic at %d:%d",
				pos.file, pos.pos)
		}
	}
	size := byteOrder.Uint32(header[4:])

	payload := make([]byte, size)
	if _, err := file.ReadAt(payload, int64(pos.pos)); err != nil {
		return nil, errors.Wrap(err, "failed to read record payload")
	}
	return payload, nil
}

// syncFiles fsyncs the active block file and its undo file. It is called by
// the flush manager before the block index is committed so index entries
// never point at data the filesystem might still lose.
func (s *blockFileStore) syncFiles() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, path := range []string{
		s.blockFilePath(s.lastFileNum),
		s.undoFilePath(s.lastFileNum),
	} {
		file, ok := s.openFiles[path]
		if !ok {
			continue
		}
		if err := file.Sync(); err != nil {
			return errors.Wrapf(err, "failed to sync %s", path)
		}
	}
	return nil
}

// dirtyInfos returns the statistics of every file modified since the last
// flush together with the current last file number, and clears the dirty
// set.
func (s *blockFileStore) dirtyInfos() (map[int32]*blockFileInfo, int32) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	dirty := make(map[int32]*blockFileInfo, len(s.dirtyFileInfo))
	for fileNum := range s.dirtyFileInfo {
		dirty[fileNum] = s.fileInfo[fileNum]
	}
	s.dirtyFileInfo = make(map[int32]struct{})
	return dirty, s.lastFileNum
}

// markDirty adds the given file numbers back to the dirty set. It is used to
// retry a failed flush.
func (s *blockFileStore) markDirty(fileNums map[int32]*blockFileInfo) {
	s.mtx.Lock()
	for fileNum := range fileNums {
		s.dirtyFileInfo[fileNum] = struct{}{}
	}
	s.mtx.Unlock()
}

// Close closes all cached file handles.
func (s *blockFileStore) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var firstErr error
	for path, file := range s.openFiles {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close %s", path)
		}
		delete(s.openFiles, path)
	}
	return firstErr
}

// checkDiskSpace returns errOutOfDiskSpace when the volume holding dir does
// not have room for the requested bytes plus a safety margin.
func checkDiskSpace(dir string, additionalBytes uint64) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		// If free space can't be determined, let the write itself
		// surface any failure.
		return nil
	}
	available := stat.Bavail * uint64(stat.Bsize)
	if available < minDiskSpace+additionalBytes {
		return errOutOfDiskSpace
	}
	return nil
}
