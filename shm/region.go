//go:build unix

package shm

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/jd3nn1s/flightreader"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var (
	ErrClosed       = errors.New("memory-mapped region is closed")
	ErrSizeMismatch = errors.New("memory-mapped region has unexpected size")
)

// DefaultDir returns /dev/shm when it exists and the OS temp dir otherwise.
func DefaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Region is the producer side of the memory-mapped snapshot.
type Region struct {
	path    string
	mem     []byte
	scratch [flightreader.SnapshotSize]byte
}

// Create creates (or truncates) the backing file dir/name, maps it read-write
// and initializes it with a default snapshot.
func Create(dir, name string) (*Region, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create shared region %s", path)
	}
	defer f.Close()

	if err := f.Truncate(int64(flightreader.SnapshotSize)); err != nil {
		return nil, errors.Wrapf(err, "unable to size shared region %s", path)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, flightreader.SnapshotSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrapf(err, "unable to map shared region %s", path)
	}

	r := &Region{
		path: path,
		mem:  mem,
	}
	if err := r.write(flightreader.NewSnapshot()); err != nil {
		_ = r.Close()
		return nil, err
	}
	log.WithField("path", path).
		WithField("size", flightreader.SnapshotSize).
		Info("shared region created")
	return r, nil
}

func (r *Region) Path() string {
	return r.path
}

// MarkInvalid clears data_valid in the mapped region.
func (r *Region) MarkInvalid() {
	if r.mem == nil {
		return
	}
	atomic.StoreUint32(word(r.mem, offsetDataValid), 0)
}

// Publish copies s into the mapped region, storing data_valid last.
func (r *Region) Publish(s *flightreader.Snapshot) error {
	return r.write(s)
}

func (r *Region) write(s *flightreader.Snapshot) error {
	if r.mem == nil {
		return ErrClosed
	}
	if _, err := binary.Encode(r.scratch[:], binary.LittleEndian, s); err != nil {
		return errors.Wrap(err, "unable to encode snapshot")
	}
	atomic.StoreUint32(word(r.mem, offsetDataValid), 0)
	copy(r.mem[offsetBody:], r.scratch[offsetBody:])
	copy(r.mem[offsetTimestamp:offsetDataValid], r.scratch[offsetTimestamp:offsetDataValid])
	atomic.StoreUint32(word(r.mem, offsetUpdateCounter), s.UpdateCounter)
	atomic.StoreUint32(word(r.mem, offsetDataValid), s.DataValid)
	return nil
}

// Close unmaps the region and then removes the backing file.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	if err != nil {
		return errors.Wrap(err, "unable to unmap shared region")
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unable to remove shared region %s", r.path)
	}
	log.WithField("path", r.path).Info("shared region closed")
	return nil
}

// word returns the 32-bit word at offset. mmap memory is page aligned so all
// header offsets are suitably aligned for atomic access.
func word(mem []byte, offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[offset]))
}
