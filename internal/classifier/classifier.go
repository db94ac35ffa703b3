// Package classifier provides minimal file-format classifiers. Each one
// checks magic values only; full format parsing is out of scope.
package classifier

import (
	"bytes"
	"encoding/binary"
)

const (
	TagPE    = "PE"
	TagELF   = "ELF"
	TagMachO = "MACHO"
)

// PE matches Windows portable executables: an MZ header whose e_lfanew
// field points at a "PE\0\0" signature.
type PE struct{}

func (PE) Tag() string { return TagPE }

func (PE) Match(data []byte) (bool, error) {
	if len(data) < 0x40 || !bytes.HasPrefix(data, []byte("MZ")) {
		return false, nil
	}
	off := binary.LittleEndian.Uint32(data[0x3c:0x40])
	if uint64(off)+4 > uint64(len(data)) {
		return false, nil
	}
	return bytes.Equal(data[off:off+4], []byte("PE\x00\x00")), nil
}

// ELF matches executables and shared objects carrying the ELF magic with a
// known class byte.
type ELF struct{}

func (ELF) Tag() string { return TagELF }

func (ELF) Match(data []byte) (bool, error) {
	if len(data) < 5 || !bytes.HasPrefix(data, []byte("\x7fELF")) {
		return false, nil
	}
	// EI_CLASS: 1 = 32-bit, 2 = 64-bit
	return data[4] == 1 || data[4] == 2, nil
}

// MachO matches thin Mach-O images in either byte order. Universal (fat)
// binaries are not matched: their magic is shared with Java class files.
type MachO struct{}

func (MachO) Tag() string { return TagMachO }

var machoMagics = []uint32{
	0xfeedface, // MH_MAGIC
	0xfeedfacf, // MH_MAGIC_64
	0xcefaedfe, // MH_CIGAM
	0xcffaedfe, // MH_CIGAM_64
}

func (MachO) Match(data []byte) (bool, error) {
	if len(data) < 4 {
		return false, nil
	}
	magic := binary.BigEndian.Uint32(data[:4])
	for _, m := range machoMagics {
		if magic == m {
			return true, nil
		}
	}
	return false, nil
}
