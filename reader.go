package overlayfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// ReadFile opens a read stream on a logical file. When the file has both
// a base contribution and a diff file, the stream transparently
// concatenates the base prefix with the diff suffix.
func (o *Overlay) ReadFile(p string) (ReadStream, error) {
	p = cleanPath(p)
	res, err := o.resolve(p)
	if err != nil {
		return nil, err
	}
	if res.state == absentTombstoned {
		return nil, &os.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	if isDir, err := o.IsDirectory(p); err != nil {
		return nil, err
	} else if isDir {
		return nil, &os.PathError{Op: "open", Path: p, Err: ErrIsDirectory}
	}

	switch res.state {
	case baseOnly:
		return o.base.ReadFile(res.basePhys)
	case diffOnly:
		return o.diff.ReadFile(p)
	}

	base, err := o.base.ReadFile(res.basePhys)
	if err != nil {
		return nil, err
	}
	diff, err := o.diff.ReadFile(p)
	if err != nil {
		base.Close()
		return nil, err
	}
	return newConcatStream(base, diff)
}

// concatStream presents two read streams as one: all of base, then all
// of diff. Byte i maps to base[i] while i < base size, and to
// diff[i - base size] afterward.
//
// The stream keeps both inner readers positioned consistently with the
// logical offset: the base reader at min(pos, baseSize), the diff reader
// at max(0, pos-baseSize). Reads pull from whichever side the offset
// falls in; crossing the boundary flips to the diff reader.
type concatStream struct {
	base, diff ReadStream

	baseSize, diffSize int64
	pos                int64
}

func newConcatStream(base, diff ReadStream) (*concatStream, error) {
	baseSize, err := base.Size()
	if err == nil {
		var diffSize int64
		diffSize, err = diff.Size()
		if err == nil {
			return &concatStream{base: base, diff: diff, baseSize: baseSize, diffSize: diffSize}, nil
		}
	}
	base.Close()
	diff.Close()
	return nil, err
}

func (s *concatStream) Read(p []byte) (int, error) {
	if s.pos >= s.baseSize+s.diffSize {
		return 0, io.EOF
	}
	if s.pos < s.baseSize {
		// Cap at the boundary so a single Read never straddles both sides.
		if room := s.baseSize - s.pos; int64(len(p)) > room {
			p = p[:room]
		}
		n, err := s.base.Read(p)
		s.pos += int64(n)
		if err == io.EOF && s.pos >= s.baseSize {
			err = nil
		}
		return n, err
	}
	n, err := s.diff.Read(p)
	s.pos += int64(n)
	return n, err
}

// Seek positions the logical offset and realigns both inner readers.
func (s *concatStream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = s.baseSize + s.diffSize + offset
	default:
		return 0, fmt.Errorf("concat stream: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("concat stream: negative position %d", target)
	}

	basePos := target
	if basePos > s.baseSize {
		basePos = s.baseSize
	}
	if _, err := s.base.Seek(basePos, io.SeekStart); err != nil {
		return 0, err
	}
	diffPos := target - s.baseSize
	if diffPos < 0 {
		diffPos = 0
	}
	if _, err := s.diff.Seek(diffPos, io.SeekStart); err != nil {
		return 0, err
	}
	s.pos = target
	return target, nil
}

// Size returns the combined logical size.
func (s *concatStream) Size() (int64, error) {
	return s.baseSize + s.diffSize, nil
}

func (s *concatStream) Close() error {
	return errors.Join(s.base.Close(), s.diff.Close())
}
