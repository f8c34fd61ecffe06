// Package ioutilx provides loop-until-complete read/write helpers for raw
// file descriptors, the kind of short-read/short-write guard the standard
// library leaves to the caller when working below the io.Reader/io.Writer
// abstractions (os.File.ReadAt/WriteAt already retry internally on Linux,
// but callers working with unix.Pread/Pwrite directly do not get that for
// free).
package ioutilx

import (
	"fmt"
	"os"
)

// FullWrite writes all of buf to f starting at off, looping over short
// writes. It returns an error wrapping the underlying write error, if any.
func FullWrite(f *os.File, buf []byte, off int64) error {
	sent := 0
	for sent < len(buf) {
		n, err := f.WriteAt(buf[sent:], off+int64(sent))
		if err != nil {
			return fmt.Errorf("full write at offset %d: %w", off+int64(sent), err)
		}
		if n == 0 {
			return fmt.Errorf("full write at offset %d: zero-length write", off+int64(sent))
		}
		sent += n
	}
	return nil
}

// FullRead reads len(buf) bytes from f starting at off, looping over short
// reads. It returns an error wrapping the underlying read error, if any.
func FullRead(f *os.File, buf []byte, off int64) error {
	recvd := 0
	for recvd < len(buf) {
		n, err := f.ReadAt(buf[recvd:], off+int64(recvd))
		recvd += n
		if recvd >= len(buf) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("full read at offset %d: %w", off+int64(recvd), err)
		}
		if n == 0 {
			return fmt.Errorf("full read at offset %d: zero-length read", off+int64(recvd))
		}
	}
	return nil
}
