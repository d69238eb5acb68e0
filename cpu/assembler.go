// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/ezrec/lrvm/internal"
)

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO":           "0",
	"REGISTER_COUNT":   fmt.Sprintf("%d", REGISTER_COUNT),
	"INSTRUCTION_SIZE": fmt.Sprintf("%d", INSTRUCTION_SIZE),
	"WORD_SIZE":        fmt.Sprintf("%d", WORD_SIZE),
	"STACK_LIMIT":      fmt.Sprintf("%d", STACK_LIMIT),
	"HEAP_LIMIT":       fmt.Sprintf("%#x", HEAP_LIMIT),
}

// Defines returns the equates predefined for every assembly, by name.
func Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Sorted(sysEquate)
}

// Assembler is a two pass assembler for the lrvm instruction set.
//
// The first pass parses every line into the Lines listing, assigning each
// instruction its offset and recording label declarations. The second
// pass links label references to their offsets.
//
// Lines between .data and .code build the data segment with .asciiz;
// labels declared there resolve to data segment offsets.
type Assembler struct {
	Verbose bool   // If set, verbosely logs the assembler actions.
	Lines   []Line // Listing of generated instructions.
	Data    []byte // Data segment, preloaded into the heap.

	predefine map[string]string // Predefines
	Label     map[string]uint32 // Map of labels to instruction stream or data segment offsets.
	Equate    map[string]string // Map of equates.

	inData     bool            // Set between .data and .code.
	dataLabel  map[string]bool // Labels declared in the data segment.
	labelLine  map[string]int  // Line of each label declaration.
	linkColumn map[int]int     // Source column of each line's label reference.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// Assemble compiles assembly source into a program image.
// On error, no image is returned.
func Assemble(source string) (data []byte, err error) {
	asm := &Assembler{}
	prog, err := asm.Parse(strings.NewReader(source))
	if err != nil {
		return
	}

	return prog.Binary()
}

// syntaxAt locates err at the token's position.
func syntaxAt(tok Token, err error) *ErrSyntax {
	return &ErrSyntax{LineNo: tok.Line, Column: tok.Column, Err: err}
}

// parseError reports the token found where something else was expected.
func parseError(tok Token, expected string) *ErrSyntax {
	return syntaxAt(tok, &ErrParse{
		Line:     tok.Line,
		Column:   tok.Column,
		Expected: expected,
		Found:    tok.Describe(),
	})
}

// valueOf returns the integer value of an equate.
func valueOf(word string) (value int64, err error) {
	return ParseInteger(strings.TrimPrefix(word, "#"))
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value int64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		value, err := valueOf(str)
		if err != nil {
			// Ignore non-integer equates. They may be registers.
			continue
		}
		pred[key] = starlark.MakeInt64(value)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_int, ok := dict["rc"].(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value, ok = st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	return
}

// substitute replaces an equate reference by the equate's value token.
func (asm *Assembler) substitute(tok Token, equ string) (out Token, err error) {
	for value, lexErr := range Lex(equ) {
		if lexErr != nil || value.Kind == TOKEN_EOF || value.Kind == TOKEN_NEWLINE {
			break
		}
		out = value
		out.Line = tok.Line
		out.Column = tok.Column
		return
	}

	err = parseError(tok, f("value for %v", tok.Text))
	return
}

// operand converts a token into an operand of the given kind.
// Label references are returned unresolved, for the link pass.
func (asm *Assembler) operand(kind OperandKind, tok Token) (value int32, label string, err error) {
	if tok.Kind == TOKEN_IDENT {
		equ, ok := asm.Equate[tok.Text]
		if ok {
			tok, err = asm.substitute(tok, equ)
			if err != nil {
				return
			}
		}
	}

	var number int64
	switch tok.Kind {
	case TOKEN_REGISTER:
		if kind != KIND_REGISTER {
			err = parseError(tok, kind.String())
			return
		}
		if tok.Value < 0 || tok.Value >= REGISTER_COUNT {
			err = parseError(tok, f("register %v", fmt.Sprintf("$0-$%d", REGISTER_COUNT-1)))
			return
		}
		value = int32(tok.Value)
		return
	case TOKEN_IDENT:
		if kind == KIND_REGISTER {
			err = parseError(tok, kind.String())
			return
		}
		label = tok.Text
		return
	case TOKEN_INTEGER:
		number = tok.Value
	case TOKEN_EXPRESSION:
		number, err = asm.parenEval(tok.Text[2 : len(tok.Text)-1])
		if err != nil {
			err = syntaxAt(tok, errors.Join(ErrParseExpression(tok.Text[2:len(tok.Text)-1]), err))
			return
		}
	default:
		err = parseError(tok, kind.String())
		return
	}

	switch kind {
	case KIND_IMMEDIATE:
		if number < math.MinInt16 || number > math.MaxInt16 {
			err = parseError(tok, f("immediate %v", rangeText(math.MinInt16, math.MaxInt16)))
			return
		}
		value = int32(number)
	case KIND_UNSIGNED:
		if number < 0 || number > math.MaxUint16 {
			err = parseError(tok, f("unsigned immediate %v", rangeText(0, math.MaxUint16)))
			return
		}
		value = int32(number)
	case KIND_ADDRESS:
		if number < 0 || number > math.MaxUint16 {
			err = parseError(tok, f("address %v", rangeText(0, math.MaxUint16)))
			return
		}
		value = int32(number)
	default:
		err = parseError(tok, kind.String())
	}

	return
}

// rangeText formats an operand range for messages.
func rangeText(low, high int64) string {
	return fmt.Sprintf("%d..%d", low, high)
}

// currentIp gets the offset of the next instruction.
func (asm *Assembler) currentIp() uint32 {
	return uint32(len(asm.Lines)) * INSTRUCTION_SIZE
}

// parseDirective evaluates a directive line.
func (asm *Assembler) parseDirective(head Token, args []Token, eol Token) (err error) {
	switch strings.ToLower(head.Text) {
	case "data", "code":
		if len(args) > 0 {
			return parseError(args[0], eol.Kind.String())
		}
		asm.inData = strings.ToLower(head.Text) == "data"
	case "asciiz":
		// .asciiz 'text'
		if !asm.inData {
			return parseError(head, f(".data section"))
		}
		if len(args) < 1 {
			return parseError(eol, TOKEN_STRING.String())
		}
		if len(args) > 1 {
			return parseError(args[1], eol.Kind.String())
		}
		str := args[0]
		if str.Kind != TOKEN_STRING {
			return parseError(str, TOKEN_STRING.String())
		}
		if len(asm.Data)+len(str.Text)+1 > HEAP_LIMIT {
			return syntaxAt(str, ErrOutOfBounds)
		}
		asm.Data = append(asm.Data, str.Text...)
		asm.Data = append(asm.Data, 0)
	case "equ":
		// .equ NAME VALUE
		if len(args) < 2 {
			return parseError(eol, f(".equ name and value"))
		}
		if len(args) > 2 {
			return parseError(args[2], eol.Kind.String())
		}
		name := args[0]
		if name.Kind != TOKEN_IDENT {
			return parseError(name, TOKEN_IDENT.String())
		}
		_, ok := asm.Equate[name.Text]
		if ok {
			return syntaxAt(name, ErrEquateDuplicate)
		}
		value := args[1]
		switch value.Kind {
		case TOKEN_INTEGER, TOKEN_REGISTER:
			asm.Equate[name.Text] = value.Text
		case TOKEN_EXPRESSION:
			expr := value.Text[2 : len(value.Text)-1]
			number, evalErr := asm.parenEval(expr)
			if evalErr != nil {
				return syntaxAt(value, errors.Join(ErrParseExpression(expr), evalErr))
			}
			asm.Equate[name.Text] = strconv.FormatInt(number, 10)
		case TOKEN_IDENT:
			equ, ok := asm.Equate[value.Text]
			if !ok {
				return parseError(value, f("value"))
			}
			asm.Equate[name.Text] = equ
		default:
			return parseError(value, f("value"))
		}
	default:
		return parseError(head, f("directive"))
	}

	return
}

// parseLine parses the tokens of a single line, terminated by eol.
func (asm *Assembler) parseLine(tokens []Token, eol Token) (err error) {
	for len(tokens) > 0 && tokens[0].Kind == TOKEN_LABEL {
		tok := tokens[0]
		prev, ok := asm.labelLine[tok.Text]
		if ok {
			return syntaxAt(tok, &ErrLabelDuplicated{Label: tok.Text, Previous: prev})
		}
		if asm.inData {
			asm.Label[tok.Text] = uint32(len(asm.Data))
			asm.dataLabel[tok.Text] = true
		} else {
			asm.Label[tok.Text] = asm.currentIp()
		}
		asm.labelLine[tok.Text] = tok.Line
		tokens = tokens[1:]
	}

	// no-op
	if len(tokens) == 0 {
		return
	}

	head := tokens[0]

	var args []Token
	for _, tok := range tokens[1:] {
		if tok.Kind != TOKEN_COMMA {
			args = append(args, tok)
		}
	}

	switch head.Kind {
	case TOKEN_DIRECTIVE:
		return asm.parseDirective(head, args, eol)
	case TOKEN_IDENT:
		// opcode
	default:
		return parseError(head, f("mnemonic"))
	}

	op, ok := LookupMnemonic(head.Text)
	if !ok {
		return parseError(head, f("mnemonic"))
	}

	if asm.inData {
		return parseError(head, f(".code section"))
	}

	sig := op.Signature()
	if len(args) < sig.Arity() {
		return parseError(eol, sig.Operands[len(args)].String())
	}
	if len(args) > sig.Arity() {
		return parseError(args[sig.Arity()], eol.Kind.String())
	}

	line := Line{
		LineNo:      head.Line,
		Ip:          asm.currentIp(),
		Words:       []string{head.Text},
		Instruction: Instruction{Opcode: op},
	}

	for n, kind := range sig.Operands {
		tok := args[n]
		line.Words = append(line.Words, tok.Text)

		var value int32
		var label string
		value, label, err = asm.operand(kind, tok)
		if err != nil {
			return
		}
		if len(label) != 0 {
			line.LinkLabel = label
			line.LinkOperand = n
			asm.linkColumn[len(asm.Lines)] = tok.Column
		}
		line.Instruction.Operands[n] = value
	}

	asm.Lines = append(asm.Lines, line)

	return
}

// link resolves every label reference to its offset.
func (asm *Assembler) link() (err error) {
	for n := range asm.Lines {
		op := &asm.Lines[n]

		if len(op.LinkLabel) == 0 {
			continue
		}

		site := Token{Line: op.LineNo, Column: asm.linkColumn[n]}

		ip, ok := asm.Label[op.LinkLabel]
		if !ok {
			return syntaxAt(site, ErrLabelMissing(op.LinkLabel))
		}

		site.Kind = TOKEN_IDENT
		site.Text = op.LinkLabel

		limit := uint32(math.MaxUint16)
		kind := op.Instruction.Opcode.Signature().Operands[op.LinkOperand]
		switch kind {
		case KIND_IMMEDIATE:
			limit = math.MaxInt16
		case KIND_ADDRESS:
			if asm.dataLabel[op.LinkLabel] {
				return parseError(site, f("code label"))
			}
		}
		if ip > limit {
			return parseError(site, f("%v within %v", kind, strconv.FormatUint(uint64(limit), 10)))
		}

		op.Instruction.Operands[op.LinkOperand] = int32(ip)
	}

	return
}

// Parse parses an input stream into a Program containing opcodes.
// On error, no program is returned.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return
	}

	source := string(data)
	lines := strings.Split(source, "\n")

	defer func() {
		var syn *ErrSyntax
		if errors.As(err, &syn) && syn.LineNo > 0 && syn.LineNo <= len(lines) {
			syn.Line = strings.TrimSpace(lines[syn.LineNo-1])
		}
	}()

	asm.Lines = nil
	asm.Data = nil
	asm.inData = false
	asm.Label = make(map[string]uint32, 16)
	asm.dataLabel = make(map[string]bool)
	asm.labelLine = make(map[string]int, 16)
	asm.linkColumn = make(map[int]int)
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	var line []Token
	for tok, lexErr := range Lex(source) {
		if lexErr != nil {
			var lex *ErrLex
			errors.As(lexErr, &lex)
			err = &ErrSyntax{LineNo: lex.Line, Column: lex.Column, Err: lexErr}
			return
		}

		if tok.Kind != TOKEN_NEWLINE && tok.Kind != TOKEN_EOF {
			line = append(line, tok)
			continue
		}

		if asm.Verbose && tok.Line <= len(lines) {
			log.Printf("%v: %v\n", tok.Line, lines[tok.Line-1])
		}

		asm.Equate["LINENO"] = strconv.Itoa(tok.Line)

		err = asm.parseLine(line, tok)
		if err != nil {
			return
		}
		line = line[:0]
	}

	err = asm.link()
	if err != nil {
		return
	}

	prog = &Program{
		Lines: slices.Clone(asm.Lines),
		Data:  slices.Clone(asm.Data),
	}

	return
}
