//go:build unix

package mmap

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var pageSize = unix.Getpagesize()

func mapFile(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
}

func unmapFile(data []byte) error {
	return unix.Munmap(data)
}

var advice = map[Hint]int{
	HintNormal:     unix.MADV_NORMAL,
	HintSequential: unix.MADV_SEQUENTIAL,
	HintRandom:     unix.MADV_RANDOM,
	HintWillNeed:   unix.MADV_WILLNEED,
}

func advise(data []byte, h Hint) error {
	a, ok := advice[h]
	if !ok || len(data) == 0 {
		return nil
	}
	err := unix.Madvise(data, a)
	if errors.Is(err, unix.ENOSYS) {
		return nil
	}
	return err
}
