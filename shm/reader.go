//go:build unix

package shm

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/jd3nn1s/flightreader"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Reader is a read-only consumer of a region created by another process.
type Reader struct {
	mem []byte
	buf [flightreader.SnapshotSize]byte
}

func Open(dir, name string) (*Reader, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open shared region %s", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to stat shared region %s", path)
	}
	if fi.Size() != int64(flightreader.SnapshotSize) {
		return nil, errors.Wrapf(ErrSizeMismatch, "%s is %d bytes, expected %d",
			path, fi.Size(), flightreader.SnapshotSize)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, flightreader.SnapshotSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to map shared region %s", path)
	}
	return &Reader{mem: mem}, nil
}

// Read copies the current snapshot. ok is false when an update was in
// progress during the copy, in which case s may be torn.
func (r *Reader) Read() (s flightreader.Snapshot, ok bool, err error) {
	if r.mem == nil {
		return s, false, ErrClosed
	}
	valid := atomic.LoadUint32(word(r.mem, offsetDataValid))
	counter := atomic.LoadUint32(word(r.mem, offsetUpdateCounter))
	copy(r.buf[:], r.mem)
	validAfter := atomic.LoadUint32(word(r.mem, offsetDataValid))
	counterAfter := atomic.LoadUint32(word(r.mem, offsetUpdateCounter))

	if _, err := binary.Decode(r.buf[:], binary.LittleEndian, &s); err != nil {
		return s, false, errors.Wrap(err, "unable to decode snapshot")
	}
	ok = valid == 1 && validAfter == 1 && counter == counterAfter
	return s, ok, nil
}

func (r *Reader) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return errors.Wrap(err, "unable to unmap shared region")
}
