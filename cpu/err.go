package cpu

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ezrec/lrvm/translate"
)

var f = translate.From

var (
	// Image load errors
	ErrLoad           = errors.New(f("load"))
	ErrImageTruncated = errors.New(f("image shorter than header"))
	ErrImageMagic     = errors.New(f("image magic mismatch"))
	ErrImageVersion   = errors.New(f("image version unsupported"))

	// Instruction decode errors
	ErrIllegalOpcode        = errors.New(f("illegal opcode"))
	ErrTruncatedInstruction = errors.New(f("truncated instruction"))
	ErrRegisterInvalid      = errors.New(f("register invalid"))
	ErrPaddingInvalid       = errors.New(f("padding invalid"))
	ErrOperandRange         = errors.New(f("operand out of range"))

	// Execution errors
	ErrDivisionByZero     = errors.New(f("division by zero"))
	ErrJumpOutOfBounds    = errors.New(f("jump out of bounds"))
	ErrCallStackUnderflow = errors.New(f("call stack underflow"))
	ErrOutOfBounds        = errors.New(f("heap access out of bounds"))
	ErrStackEmpty         = errors.New(f("stack empty"))
	ErrStackFull          = errors.New(f("stack full"))
	ErrInstructionLimit   = errors.New(f("instruction limit exceeded"))

	// Assembler errors
	ErrLabelDuplicate  = errors.New(f("label duplicated"))
	ErrEquateDuplicate = errors.New(f(".equ duplicated"))
)

// ErrLex reports a character the lexer cannot start a token with.
// The message omits the position; see Line and Column.
type ErrLex struct {
	Line   int
	Column int
	Char   rune
}

func (err *ErrLex) Error() string {
	return f("unexpected character %q", err.Char)
}

// ErrParse reports a token that does not fit the instruction grammar.
// The message omits the position; see Line and Column.
type ErrParse struct {
	Line     int
	Column   int
	Expected string
	Found    string
}

func (err *ErrParse) Error() string {
	return f("expected %v, found %v", err.Expected, err.Found)
}

// ErrLabelDuplicated reports the second declaration of a label.
type ErrLabelDuplicated struct {
	Label    string
	Previous int // Line of the first declaration.
}

func (err *ErrLabelDuplicated) Error() string {
	return f("label %v duplicated, first declared on line %v", err.Label, strconv.Itoa(err.Previous))
}

func (err *ErrLabelDuplicated) Unwrap() error {
	return ErrLabelDuplicate
}

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

// ErrSyntax is the error returned by the assembler. It locates the
// failure in the source text.
type ErrSyntax struct {
	LineNo int
	Column int
	Line   string
	Err    error
}

func (err *ErrSyntax) Error() string {
	pos := fmt.Sprintf("%d:%d", err.LineNo, err.Column)
	return f("line %v '%v' %v: %v", pos, err.Line, err.Category(), err.Err)
}

func (err *ErrSyntax) Unwrap() error {
	return err.Err
}

// Category is the human-readable class of the assembly failure.
func (err *ErrSyntax) Category() string {
	var lex *ErrLex
	var missing ErrLabelMissing
	switch {
	case errors.As(err.Err, &lex):
		return f("lex")
	case errors.Is(err.Err, ErrLabelDuplicate):
		return f("duplicate label")
	case errors.As(err.Err, &missing):
		return f("unresolved symbol")
	default:
		return f("parse")
	}
}

// ErrDecode locates an instruction that could not be decoded.
type ErrDecode struct {
	Offset uint32
	Err    error
}

func (err *ErrDecode) Error() string {
	return f("decode @%v: %v", strconv.FormatUint(uint64(err.Offset), 10), err.Err)
}

func (err *ErrDecode) Unwrap() error {
	return err.Err
}

// ErrExecute locates an instruction that halted the machine.
type ErrExecute struct {
	Pc          uint32
	Instruction Instruction
	Err         error
}

func (err *ErrExecute) Error() string {
	return f("@%v %v: %v", strconv.FormatUint(uint64(err.Pc), 10), err.Instruction, err.Err)
}

func (err *ErrExecute) Unwrap() error {
	return err.Err
}
