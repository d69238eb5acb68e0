package cpu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"iter"
)

// IMAGE_MAGIC prefixes every program image, followed by the ISA_VERSION byte.
var IMAGE_MAGIC = [4]byte{'L', 'R', 'V', 'M'}

// Image layout:
//
//	[magic:4][version:1][data length:4, big-endian][data segment][instruction stream]
const (
	IMAGE_VERSION_OFFSET = len(IMAGE_MAGIC)
	IMAGE_DATA_OFFSET    = IMAGE_VERSION_OFFSET + 1
	IMAGE_HEADER_SIZE    = IMAGE_DATA_OFFSET + 4
)

// Image is a loadable program: a header-checked data segment and
// instruction stream.
type Image struct {
	Version uint8
	Data    []byte // Preloaded at heap offset 0.
	Code    []byte
}

// ParseImage validates the image header, and returns the image.
// The data segment and instruction stream are not copied.
func ParseImage(data []byte) (img *Image, err error) {
	var size uint64
	switch {
	case len(data) < IMAGE_DATA_OFFSET:
		err = ErrImageTruncated
	case !bytes.Equal(data[:len(IMAGE_MAGIC)], IMAGE_MAGIC[:]):
		err = ErrImageMagic
	case data[IMAGE_VERSION_OFFSET] != ISA_VERSION:
		err = ErrImageVersion
	case len(data) < IMAGE_HEADER_SIZE:
		err = ErrImageTruncated
	default:
		size = uint64(binary.BigEndian.Uint32(data[IMAGE_DATA_OFFSET:]))
		if size > uint64(len(data)-IMAGE_HEADER_SIZE) {
			err = ErrImageTruncated
		}
	}
	if err != nil {
		err = errors.Join(ErrLoad, err)
		return
	}

	code := IMAGE_HEADER_SIZE + int(size)
	img = &Image{
		Version: data[IMAGE_VERSION_OFFSET],
		Data:    data[IMAGE_HEADER_SIZE:code],
		Code:    data[code:],
	}

	return
}

// Bytes serializes the image, header included.
func (img *Image) Bytes() (data []byte) {
	data = make([]byte, 0, IMAGE_HEADER_SIZE+len(img.Data)+len(img.Code))
	data = append(data, IMAGE_MAGIC[:]...)
	data = append(data, img.Version)
	data = binary.BigEndian.AppendUint32(data, uint32(len(img.Data)))
	data = append(data, img.Data...)
	data = append(data, img.Code...)
	return
}

// Instructions walks the instruction stream, stopping at the first
// instruction that does not decode.
func (img *Image) Instructions() iter.Seq2[uint32, Instruction] {
	return func(yield func(ip uint32, ins Instruction) bool) {
		for ip := uint32(0); int(ip) < len(img.Code); {
			ins, next, err := Decode(img.Code, ip)
			if err != nil {
				return
			}
			if !yield(ip, ins) {
				return
			}
			ip = next
		}
	}
}

// Line represents a line of assembled code with its source location and generated instruction.
type Line struct {
	LineNo      int
	Ip          uint32 // Byte offset in the instruction stream.
	Words       []string
	Instruction Instruction
	LinkLabel   string // Label to resolve into operand LinkOperand.
	LinkOperand int
}

// Program is the assembler listing of a program.
type Program struct {
	Lines []Line
	Data  []byte // Data segment.
}

type Debug struct {
	*Line
}

// Debug finds the listing entry of the instruction at ip.
func (prog *Program) Debug(ip uint32) (dbg Debug) {
	for n, line := range prog.Lines {
		if ip >= line.Ip && ip < line.Ip+INSTRUCTION_SIZE {
			dbg = Debug{
				Line: &prog.Lines[n],
			}
			break
		}
	}

	return
}

// Binary returns the program image.
func (prog *Program) Binary() (data []byte, err error) {
	img := &Image{Version: ISA_VERSION, Data: prog.Data}
	for _, ins := range prog.Codes() {
		img.Code, err = ins.AppendEncode(img.Code)
		if err != nil {
			return
		}
	}

	data = img.Bytes()
	return
}

// Codes iterates the instructions of the program by offset.
func (prog *Program) Codes() iter.Seq2[uint32, Instruction] {
	return func(yield func(ip uint32, ins Instruction) bool) {
		for _, line := range prog.Lines {
			if !yield(line.Ip, line.Instruction) {
				return
			}
		}
	}
}
