package channel

import (
	"fmt"
	"os"
	"path/filepath"
)

// Segment owns the two memory-mapped shared-memory objects backing one
// channel: the CCB and the buffer region. The per-server SCB is mapped
// separately, by SCBSegment. It stands in for "the server allocates
// shared memory and hands out FDs",
// spec.md §6's external collaborator, so that the rest of this package is
// testable without a real broker process.
type Segment struct {
	CCBFile *os.File
	BufFile *os.File
	CCBMem  []byte
	BufMem  []byte

	CCBPath string
	BufPath string
}

// CreateChannelSegment allocates and initializes a fresh CCB and buffer
// region for a new channel with the given name, slot count, and payload
// size. The caller is responsible for eventually calling Close.
func CreateChannelSegment(name string, numSlots, slotSize int) (*Segment, error) {
	ccbPath := segmentPath("ccb_" + name)
	bufPath := segmentPath("buf_" + name)

	ccbFile, ccbMem, err := createMapped(ccbPath, CCBSize(numSlots))
	if err != nil {
		return nil, fmt.Errorf("channel: create CCB segment: %w", err)
	}
	bufFile, bufMem, err := createMapped(bufPath, BufferRegionSize(numSlots, slotSize))
	if err != nil {
		unmapAndClose(ccbMem, ccbFile)
		os.Remove(ccbPath)
		return nil, fmt.Errorf("channel: create buffer segment: %w", err)
	}

	initCCB(ccbMem, name, numSlots, slotSize)

	return &Segment{
		CCBFile: ccbFile, BufFile: bufFile,
		CCBMem: ccbMem, BufMem: bufMem,
		CCBPath: ccbPath, BufPath: bufPath,
	}, nil
}

// OpenChannelSegment maps an existing channel's CCB and buffer region by
// name. numSlots and slotSize must match the values the segment was
// created with; they are needed to size the buffer region mapping since,
// unlike the CCB, the buffer region carries no self-describing header.
func OpenChannelSegment(name string, numSlots, slotSize int) (*Segment, error) {
	ccbPath := segmentPath("ccb_" + name)
	bufPath := segmentPath("buf_" + name)

	ccbFile, ccbMem, err := openMapped(ccbPath, CCBSize(numSlots))
	if err != nil {
		return nil, fmt.Errorf("channel: open CCB segment: %w", err)
	}
	bufFile, bufMem, err := openMapped(bufPath, BufferRegionSize(numSlots, slotSize))
	if err != nil {
		unmapAndClose(ccbMem, ccbFile)
		return nil, fmt.Errorf("channel: open buffer segment: %w", err)
	}

	return &Segment{
		CCBFile: ccbFile, BufFile: bufFile,
		CCBMem: ccbMem, BufMem: bufMem,
		CCBPath: ccbPath, BufPath: bufPath,
	}, nil
}

// Close unmaps and closes both shared-memory objects. It does not remove
// the backing files: removal is the allocator's (server's) decision, made
// once, when the channel is torn down — see Destroy.
func (s *Segment) Close() error {
	err1 := unmapAndClose(s.CCBMem, s.CCBFile)
	err2 := unmapAndClose(s.BufMem, s.BufFile)
	if err1 != nil {
		return err1
	}
	return err2
}

// Destroy closes the segment and removes its backing files. Only the
// participant that created the channel (the allocator standing in for
// the server) should call this.
func (s *Segment) Destroy() error {
	if err := s.Close(); err != nil {
		return err
	}
	os.Remove(s.CCBPath)
	os.Remove(s.BufPath)
	return nil
}

// SCBSegment owns the single, per-server SCB mapping, shared across all
// channels.
type SCBSegment struct {
	File *os.File
	Mem  []byte
	Path string
}

// CreateSCBSegment allocates and zeroes a fresh SCB supporting up to
// maxChannels channels.
func CreateSCBSegment(name string, maxChannels int) (*SCBSegment, error) {
	path := segmentPath("scb_" + name)
	file, mem, err := createMapped(path, SCBSize(maxChannels))
	if err != nil {
		return nil, fmt.Errorf("channel: create SCB segment: %w", err)
	}
	return &SCBSegment{File: file, Mem: mem, Path: path}, nil
}

// OpenSCBSegment maps an existing SCB by name.
func OpenSCBSegment(name string, maxChannels int) (*SCBSegment, error) {
	path := segmentPath("scb_" + name)
	file, mem, err := openMapped(path, SCBSize(maxChannels))
	if err != nil {
		return nil, fmt.Errorf("channel: open SCB segment: %w", err)
	}
	return &SCBSegment{File: file, Mem: mem, Path: path}, nil
}

func (s *SCBSegment) Close() error {
	return unmapAndClose(s.Mem, s.File)
}

func (s *SCBSegment) Destroy() error {
	if err := s.Close(); err != nil {
		return err
	}
	os.Remove(s.Path)
	return nil
}

// segmentPath generates the backing file path for a named shared-memory
// object, preferring /dev/shm the way the teacher's generateSegmentPath
// does, falling back to os.TempDir() when /dev/shm is unavailable (e.g.
// non-Linux development hosts).
func segmentPath(name string) string {
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", "subspace_"+name)
	}
	return filepath.Join(os.TempDir(), "subspace_"+name)
}

func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}

func createMapped(path string, size int64) (*os.File, []byte, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		os.Remove(path)
		return nil, nil, fmt.Errorf("resize %s: %w", path, err)
	}
	mem, err := mmapFile(file, size)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return file, mem, nil
}

func openMapped(path string, size int64) (*os.File, []byte, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() < size {
		file.Close()
		return nil, nil, fmt.Errorf("%s: too small, want %d got %d", path, size, info.Size())
	}
	mem, err := mmapFile(file, size)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return file, mem, nil
}

func unmapAndClose(mem []byte, file *os.File) error {
	err1 := munmapMemory(mem)
	err2 := file.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
