package cpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Instruction is a decoded instruction: an opcode and up to three operands.
// Operand slots beyond the opcode's arity are zero.
type Instruction struct {
	Opcode   Opcode
	Operands [3]int32
}

// MakeInstruction creates an instruction from an opcode and its operands.
func MakeInstruction(op Opcode, operands ...int32) (ins Instruction) {
	ins.Opcode = op
	copy(ins.Operands[:], operands)
	return
}

// Encode returns the INSTRUCTION_SIZE byte encoding of the instruction.
func (ins Instruction) Encode() (word []byte, err error) {
	return ins.AppendEncode(nil)
}

// Validate checks the opcode and every operand against the opcode's
// signature: registers below REGISTER_COUNT, immediates within int16,
// unsigned immediates and addresses within uint16, unused slots zero.
func (ins Instruction) Validate() (err error) {
	sig := ins.Opcode.Signature()
	if sig == nil {
		err = ErrIllegalOpcode
		return
	}

	for n, kind := range sig.Operands {
		value := ins.Operands[n]
		switch kind {
		case KIND_REGISTER:
			if value < 0 || value >= REGISTER_COUNT {
				err = ErrRegisterInvalid
				return
			}
		case KIND_IMMEDIATE:
			if value < math.MinInt16 || value > math.MaxInt16 {
				err = ErrOperandRange
				return
			}
		case KIND_ADDRESS, KIND_UNSIGNED:
			if value < 0 || value > math.MaxUint16 {
				err = ErrOperandRange
				return
			}
		}
	}

	for n := sig.Arity(); n < len(ins.Operands); n++ {
		if ins.Operands[n] != 0 {
			err = ErrOperandRange
			return
		}
	}

	return
}

// AppendEncode appends the encoding of the instruction to dst.
//
// Layout: [opcode][operands, packed left to right][zero padding].
// Registers take one byte, immediates (int16), unsigned immediates and
// addresses (uint16) take two bytes, big-endian.
func (ins Instruction) AppendEncode(dst []byte) (out []byte, err error) {
	out = dst

	err = ins.Validate()
	if err != nil {
		return
	}

	var word [INSTRUCTION_SIZE]byte
	word[0] = byte(ins.Opcode)

	pos := 1
	for n, kind := range ins.Opcode.Signature().Operands {
		value := ins.Operands[n]
		switch kind {
		case KIND_REGISTER:
			word[pos] = byte(value)
		case KIND_IMMEDIATE:
			binary.BigEndian.PutUint16(word[pos:], uint16(int16(value)))
		case KIND_ADDRESS, KIND_UNSIGNED:
			binary.BigEndian.PutUint16(word[pos:], uint16(value))
		}
		pos += kind.Width()
	}

	out = append(out, word[:]...)
	return
}

// Decode decodes the instruction at offset in the stream, and returns it
// with the offset of the following instruction.
func Decode(stream []byte, offset uint32) (ins Instruction, next uint32, err error) {
	defer func() {
		if err != nil {
			err = &ErrDecode{Offset: offset, Err: err}
		}
	}()

	if uint64(offset)+INSTRUCTION_SIZE > uint64(len(stream)) {
		err = ErrTruncatedInstruction
		return
	}

	word := stream[offset : offset+INSTRUCTION_SIZE]

	op := Opcode(word[0])
	sig := op.Signature()
	if sig == nil {
		err = ErrIllegalOpcode
		return
	}

	var decoded Instruction
	decoded.Opcode = op

	pos := 1
	for n, kind := range sig.Operands {
		switch kind {
		case KIND_REGISTER:
			if word[pos] >= REGISTER_COUNT {
				err = ErrRegisterInvalid
				return
			}
			decoded.Operands[n] = int32(word[pos])
		case KIND_IMMEDIATE:
			decoded.Operands[n] = int32(int16(binary.BigEndian.Uint16(word[pos:])))
		case KIND_ADDRESS, KIND_UNSIGNED:
			decoded.Operands[n] = int32(binary.BigEndian.Uint16(word[pos:]))
		}
		pos += kind.Width()
	}

	for ; pos < INSTRUCTION_SIZE; pos++ {
		if word[pos] != 0 {
			err = ErrPaddingInvalid
			return
		}
	}

	ins = decoded
	next = offset + INSTRUCTION_SIZE
	return
}

// String returns the assembly language representation of this instruction.
func (ins Instruction) String() string {
	sig := ins.Opcode.Signature()
	if sig == nil {
		return ins.Opcode.String()
	}

	words := []string{sig.Mnemonic}
	for n, kind := range sig.Operands {
		switch kind {
		case KIND_REGISTER:
			words = append(words, fmt.Sprintf("$%d", ins.Operands[n]))
		default:
			words = append(words, fmt.Sprintf("#%d", ins.Operands[n]))
		}
	}

	return strings.Join(words, " ")
}
