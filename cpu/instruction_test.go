package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// sampleOperand returns a representative operand value of the kind.
func sampleOperand(kind OperandKind, n int) int32 {
	switch kind {
	case KIND_REGISTER:
		return int32((7*n + 31) % REGISTER_COUNT)
	case KIND_IMMEDIATE:
		return []int32{math.MinInt16, -1, 0, 1, math.MaxInt16}[n%5]
	case KIND_ADDRESS:
		return []int32{0, 4, 0x1234, math.MaxUint16}[n%4]
	case KIND_UNSIGNED:
		return []int32{0, 1, 0x8000, math.MaxUint16}[n%4]
	}
	return 0
}

func TestInstruction_RoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, op := range Opcodes() {
		sig := op.Signature()
		for n := range 5 {
			ins := Instruction{Opcode: op}
			for slot, kind := range sig.Operands {
				ins.Operands[slot] = sampleOperand(kind, n+slot)
			}

			word, err := ins.Encode()
			if !assert.NoError(err, ins) {
				continue
			}
			assert.Equal(INSTRUCTION_SIZE, len(word))
			assert.Equal(byte(op), word[0])

			again, err := ins.Encode()
			assert.NoError(err)
			assert.Equal(word, again)

			decoded, next, err := Decode(word, 0)
			assert.NoError(err, ins)
			assert.Equal(uint32(INSTRUCTION_SIZE), next)
			assert.Equal(ins, decoded)
		}
	}
}

func TestInstruction_Encode(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		ins  Instruction
		word []byte
	}){
		{MakeInstruction(OP_LOAD, 0, 10), []byte{0, 0, 0x00, 0x0a}},
		{MakeInstruction(OP_LOAD, 31, -2), []byte{0, 31, 0xff, 0xfe}},
		{MakeInstruction(OP_ADD, 0, 1, 2), []byte{1, 0, 1, 2}},
		{MakeInstruction(OP_HLT), []byte{5, 0, 0, 0}},
		{MakeInstruction(OP_JMP, 0x1234), []byte{6, 0x12, 0x34, 0}},
		{MakeInstruction(OP_NOT, 3, 4), []byte{38, 3, 4, 0}},
		{MakeInstruction(OP_CLOOP, 7), []byte{40, 0, 7, 0}},
		{MakeInstruction(OP_CLOOP, 0xfffe), []byte{40, 0xff, 0xfe, 0}},
		{MakeInstruction(OP_LUI, 1, 0x8001), []byte{39, 1, 0x80, 0x01}},
		{MakeInstruction(OP_IGL), []byte{100, 0, 0, 0}},
	}

	for _, entry := range table {
		word, err := entry.ins.Encode()
		assert.NoError(err, entry.ins)
		assert.Equal(entry.word, word, entry.ins)
	}
}

func TestInstruction_EncodeRange(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		ins Instruction
		err error
	}){
		{MakeInstruction(OP_ADD, 0, 1, 32), ErrRegisterInvalid},
		{MakeInstruction(OP_INC, -1), ErrRegisterInvalid},
		{MakeInstruction(OP_LOAD, 0, math.MaxInt16+1), ErrOperandRange},
		{MakeInstruction(OP_LOAD, 0, math.MinInt16-1), ErrOperandRange},
		{MakeInstruction(OP_JMP, -4), ErrOperandRange},
		{MakeInstruction(OP_JMP, math.MaxUint16+1), ErrOperandRange},
		{MakeInstruction(OP_HLT, 1), ErrOperandRange},
		{MakeInstruction(OP_LUI, 0, -1), ErrOperandRange},
		{MakeInstruction(OP_CLOOP, math.MaxUint16+1), ErrOperandRange},
		{MakeInstruction(Opcode(22)), ErrIllegalOpcode},
	}

	for _, entry := range table {
		word, err := entry.ins.Encode()
		assert.ErrorIs(err, entry.err, entry.ins)
		assert.Nil(word)
	}
}

func TestInstruction_Decode(t *testing.T) {
	assert := assert.New(t)

	stream := []byte{
		0, 2, 0xff, 0xff, // LOAD $2 #-1
		6, 0, 8, 0, // JMP #8
		1, 2, 3, // truncated
	}

	ins, next, err := Decode(stream, 0)
	assert.NoError(err)
	assert.Equal(MakeInstruction(OP_LOAD, 2, -1), ins)
	assert.Equal(uint32(4), next)

	ins, next, err = Decode(stream, next)
	assert.NoError(err)
	assert.Equal(MakeInstruction(OP_JMP, 8), ins)
	assert.Equal(uint32(8), next)

	_, _, err = Decode(stream, next)
	assert.ErrorIs(err, ErrTruncatedInstruction)
	var decode *ErrDecode
	if assert.ErrorAs(err, &decode) {
		assert.Equal(uint32(8), decode.Offset)
	}

	_, _, err = Decode(stream, 1000)
	assert.ErrorIs(err, ErrTruncatedInstruction)
}

func TestInstruction_DecodeInvalid(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		word []byte
		err  error
	}){
		{[]byte{22, 0, 0, 0}, ErrIllegalOpcode},
		{[]byte{0xff, 0, 0, 0}, ErrIllegalOpcode},
		{[]byte{1, 0, 32, 0}, ErrRegisterInvalid},
		{[]byte{18, 200, 0, 0}, ErrRegisterInvalid},
		{[]byte{5, 0, 0, 1}, ErrPaddingInvalid},
		{[]byte{18, 1, 1, 0}, ErrPaddingInvalid},
		{[]byte{6, 0, 8, 1}, ErrPaddingInvalid},
		{[]byte{}, ErrTruncatedInstruction},
		{[]byte{5, 0, 0}, ErrTruncatedInstruction},
	}

	for _, entry := range table {
		_, _, err := Decode(entry.word, 0)
		assert.ErrorIs(err, entry.err, entry.word)
	}
}

func TestInstruction_String(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("LOAD $0 #10", MakeInstruction(OP_LOAD, 0, 10).String())
	assert.Equal("ADD $0 $1 $2", MakeInstruction(OP_ADD, 0, 1, 2).String())
	assert.Equal("JMP #1000", MakeInstruction(OP_JMP, 1000).String())
	assert.Equal("HLT", MakeInstruction(OP_HLT).String())
	assert.Equal("ILLEGAL(22)", MakeInstruction(Opcode(22)).String())
}
