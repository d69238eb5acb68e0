package cpu

import (
	"fmt"
	"strings"
)

const (
	ISA_VERSION      = 1  // Instruction set version, carried in the image header.
	REGISTER_COUNT   = 32 // Number of general purpose registers.
	INSTRUCTION_SIZE = 4  // Bytes per encoded instruction.
)

// Opcode is the numeric operation identifier, the first byte of every instruction.
type Opcode uint8

const (
	OP_LOAD  = Opcode(0)
	OP_ADD   = Opcode(1)
	OP_SUB   = Opcode(2)
	OP_MUL   = Opcode(3)
	OP_DIV   = Opcode(4)
	OP_HLT   = Opcode(5)
	OP_JMP   = Opcode(6)
	OP_JMPF  = Opcode(7)
	OP_JMPB  = Opcode(8)
	OP_EQ    = Opcode(9)
	OP_NEQ   = Opcode(10)
	OP_GTE   = Opcode(11)
	OP_LTE   = Opcode(12)
	OP_LT    = Opcode(13)
	OP_GT    = Opcode(14)
	OP_JEQ   = Opcode(15)
	OP_NOP   = Opcode(16)
	OP_ALOC  = Opcode(17)
	OP_INC   = Opcode(18)
	OP_DEC   = Opcode(19)
	OP_JNEQ  = Opcode(20)
	OP_PRTS  = Opcode(21)
	OP_SHL   = Opcode(33)
	OP_SHR   = Opcode(34)
	OP_AND   = Opcode(35)
	OP_OR    = Opcode(36)
	OP_XOR   = Opcode(37)
	OP_NOT   = Opcode(38)
	OP_LUI   = Opcode(39)
	OP_CLOOP = Opcode(40)
	OP_LOOP  = Opcode(41)
	OP_LOADM = Opcode(42)
	OP_SETM  = Opcode(43)
	OP_PUSH  = Opcode(44)
	OP_POP   = Opcode(45)
	OP_CALL  = Opcode(46)
	OP_RET   = Opcode(47)
	OP_JMPR  = Opcode(48)
	OP_IGL   = Opcode(100) // Illegal instruction sentinel.
)

// OperandKind is the type of a single instruction operand.
type OperandKind int

//go:generate go tool stringer -linecomment -type=OperandKind
const (
	KIND_NONE      = OperandKind(0) // none
	KIND_REGISTER  = OperandKind(1) // register
	KIND_IMMEDIATE = OperandKind(2) // immediate
	KIND_ADDRESS   = OperandKind(3) // address
	KIND_UNSIGNED  = OperandKind(4) // unsigned immediate
)

// Width returns the number of encoded bytes for the operand kind.
func (kind OperandKind) Width() int {
	switch kind {
	case KIND_REGISTER:
		return 1
	case KIND_IMMEDIATE, KIND_ADDRESS, KIND_UNSIGNED:
		return 2
	}
	return 0
}

// Signature is the shape of an opcode: its mnemonic and operand kinds.
type Signature struct {
	Mnemonic string
	Aliases  []string
	Operands []OperandKind
}

// Arity returns the number of operands.
func (sig *Signature) Arity() int {
	return len(sig.Operands)
}

var (
	sigNone = []OperandKind{}
	sigR    = []OperandKind{KIND_REGISTER}
	sigRR   = []OperandKind{KIND_REGISTER, KIND_REGISTER}
	sigRRR  = []OperandKind{KIND_REGISTER, KIND_REGISTER, KIND_REGISTER}
	sigRI   = []OperandKind{KIND_REGISTER, KIND_IMMEDIATE}
	sigRU   = []OperandKind{KIND_REGISTER, KIND_UNSIGNED}
	sigU    = []OperandKind{KIND_UNSIGNED}
	sigA    = []OperandKind{KIND_ADDRESS}
)

// opcodeTable is the instruction set, indexed by opcode byte.
// A nil entry is an unknown opcode.
var opcodeTable = [256]*Signature{
	OP_LOAD:  {Mnemonic: "LOAD", Operands: sigRI},
	OP_ADD:   {Mnemonic: "ADD", Operands: sigRRR},
	OP_SUB:   {Mnemonic: "SUB", Operands: sigRRR},
	OP_MUL:   {Mnemonic: "MUL", Operands: sigRRR},
	OP_DIV:   {Mnemonic: "DIV", Operands: sigRRR},
	OP_HLT:   {Mnemonic: "HLT", Aliases: []string{"HALT"}, Operands: sigNone},
	OP_JMP:   {Mnemonic: "JMP", Operands: sigA},
	OP_JMPF:  {Mnemonic: "JMPF", Operands: sigR},
	OP_JMPB:  {Mnemonic: "JMPB", Operands: sigR},
	OP_EQ:    {Mnemonic: "EQ", Operands: sigRR},
	OP_NEQ:   {Mnemonic: "NEQ", Operands: sigRR},
	OP_GTE:   {Mnemonic: "GTE", Operands: sigRR},
	OP_LTE:   {Mnemonic: "LTE", Operands: sigRR},
	OP_LT:    {Mnemonic: "LT", Operands: sigRR},
	OP_GT:    {Mnemonic: "GT", Operands: sigRR},
	OP_JEQ:   {Mnemonic: "JEQ", Aliases: []string{"JMPE"}, Operands: sigA},
	OP_NOP:   {Mnemonic: "NOP", Operands: sigNone},
	OP_ALOC:  {Mnemonic: "ALOC", Operands: sigR},
	OP_INC:   {Mnemonic: "INC", Operands: sigR},
	OP_DEC:   {Mnemonic: "DEC", Operands: sigR},
	OP_JNEQ:  {Mnemonic: "JNEQ", Operands: sigA},
	OP_PRTS:  {Mnemonic: "PRTS", Operands: sigR},
	OP_SHL:   {Mnemonic: "SHL", Operands: sigRRR},
	OP_SHR:   {Mnemonic: "SHR", Operands: sigRRR},
	OP_AND:   {Mnemonic: "AND", Operands: sigRRR},
	OP_OR:    {Mnemonic: "OR", Operands: sigRRR},
	OP_XOR:   {Mnemonic: "XOR", Operands: sigRRR},
	OP_NOT:   {Mnemonic: "NOT", Operands: sigRR},
	OP_LUI:   {Mnemonic: "LUI", Operands: sigRU},
	OP_CLOOP: {Mnemonic: "CLOOP", Operands: sigU},
	OP_LOOP:  {Mnemonic: "LOOP", Operands: sigA},
	OP_LOADM: {Mnemonic: "LOADM", Operands: sigRR},
	OP_SETM:  {Mnemonic: "SETM", Operands: sigRR},
	OP_PUSH:  {Mnemonic: "PUSH", Operands: sigR},
	OP_POP:   {Mnemonic: "POP", Operands: sigR},
	OP_CALL:  {Mnemonic: "CALL", Operands: sigA},
	OP_RET:   {Mnemonic: "RET", Operands: sigNone},
	OP_JMPR:  {Mnemonic: "JMPR", Operands: sigR},
	OP_IGL:   {Mnemonic: "IGL", Operands: sigNone},
}

// mnemonicMap maps upper-case mnemonics and aliases to opcodes.
var mnemonicMap = func() map[string]Opcode {
	mnemonics := make(map[string]Opcode, len(opcodeTable))
	for n, sig := range opcodeTable {
		if sig == nil {
			continue
		}
		mnemonics[sig.Mnemonic] = Opcode(n)
		for _, alias := range sig.Aliases {
			mnemonics[alias] = Opcode(n)
		}
	}
	return mnemonics
}()

// Signature returns the opcode's signature, or nil if the opcode is unknown.
func (op Opcode) Signature() *Signature {
	return opcodeTable[op]
}

// Valid returns true if the opcode is part of the instruction set.
func (op Opcode) Valid() bool {
	return opcodeTable[op] != nil
}

// String returns the canonical mnemonic.
func (op Opcode) String() string {
	sig := opcodeTable[op]
	if sig == nil {
		return fmt.Sprintf("ILLEGAL(%d)", uint8(op))
	}
	return sig.Mnemonic
}

// LookupMnemonic finds the opcode for a case-insensitive mnemonic or alias.
func LookupMnemonic(name string) (op Opcode, ok bool) {
	op, ok = mnemonicMap[strings.ToUpper(name)]
	return
}

// Opcodes returns all opcodes of the instruction set in numeric order.
func Opcodes() (ops []Opcode) {
	for n, sig := range opcodeTable {
		if sig != nil {
			ops = append(ops, Opcode(n))
		}
	}
	return
}
