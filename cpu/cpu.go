package cpu

import (
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

// Cpu is the simulation context of the virtual machine.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Register    [REGISTER_COUNT]int32 // Register bank.
	Pc          uint32                // Offset of the next instruction.
	Flag        bool                  // Comparison flag.
	Remainder   int32                 // Remainder of the last DIV.
	LoopCounter uint32                // CLOOP/LOOP counter.

	Heap      Heap  // Data memory.
	CallStack Stack // Return addresses.
	DataStack Stack // PUSH/POP values.

	Output io.Writer // PRTS output; discarded if nil.

	Ticks int // CPU ticks counter.

	code   []byte
	data   []byte
	halted bool
	err    error
}

// clear resets all execution state, except for the heap.
func (cpu *Cpu) clear() {
	clear(cpu.Register[:])
	cpu.Pc = 0
	cpu.Flag = false
	cpu.Remainder = 0
	cpu.LoopCounter = 0
	cpu.CallStack.Reset()
	cpu.DataStack.Reset()
	cpu.Ticks = 0
	cpu.halted = false
	cpu.err = nil
}

// Load the CPU with a program image.
// - Clears the registers, flag, stacks and halt state.
// - Sets the PC to the start of the instruction stream.
// - Keeps the heap, except for the image's data segment, which is copied
//   to heap offset 0.
//
// If the data segment does not fit the heap, no program is loaded.
func (cpu *Cpu) Load(img *Image) (err error) {
	if cpu.Verbose {
		log.Printf("cpu: load %v bytes, %v data bytes", len(img.Code), len(img.Data))
	}

	cpu.clear()

	err = cpu.Heap.Preload(img.Data)
	if err != nil {
		cpu.code = nil
		cpu.data = nil
		err = errors.Join(ErrLoad, err)
		return
	}

	cpu.code = slices.Clone(img.Code)
	cpu.data = slices.Clone(img.Data)
	return
}

// Reset the CPU state, heap included, and preload the data segment
// again. The loaded program is kept.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	cpu.clear()
	cpu.Heap.Reset()
	cpu.Heap.Data = slices.Clone(cpu.data)
}

// Code returns the loaded instruction stream.
func (cpu *Cpu) Code() []byte {
	return cpu.code
}

// Halted returns true once the CPU has stopped.
func (cpu *Cpu) Halted() bool {
	return cpu.halted
}

// Err returns the reason the CPU halted; nil for a normal halt.
func (cpu *Cpu) Err() error {
	return cpu.err
}

// Halt stops the CPU; err is the reason, nil for a normal halt.
func (cpu *Cpu) Halt(err error) {
	if cpu.Verbose {
		log.Printf("cpu: halt @%04x: %v", cpu.Pc, err)
	}

	cpu.halted = true
	cpu.err = err
}

// Step executes a single instruction cycle.
//
// done is true once the CPU has halted, normally (err is nil) or on an
// error. A halted CPU returns the same result without changing state.
func (cpu *Cpu) Step() (done bool, err error) {
	if cpu.halted {
		return true, cpu.err
	}

	if int(cpu.Pc) == len(cpu.code) {
		cpu.Halt(nil)
		return true, nil
	}

	ins, next, err := Decode(cpu.code, cpu.Pc)
	if err != nil {
		cpu.Halt(err)
		return true, err
	}

	if cpu.Verbose {
		log.Printf("%04x: %v", cpu.Pc, ins)
	}

	next, done, err = cpu.Execute(ins, next)
	if err != nil {
		err = &ErrExecute{Pc: cpu.Pc, Instruction: ins, Err: err}
		cpu.Halt(err)
		return true, err
	}

	cpu.Pc = next
	cpu.Ticks++

	if done {
		cpu.Halt(nil)
	}

	return
}

// Run steps the CPU until it halts.
//
// If maxSteps is non-zero, and that many instructions have been stepped
// without halting, the CPU halts with ErrInstructionLimit.
func (cpu *Cpu) Run(maxSteps uint64) (err error) {
	for steps := uint64(0); maxSteps == 0 || steps < maxSteps; steps++ {
		var done bool
		done, err = cpu.Step()
		if done {
			return
		}
	}

	err = ErrInstructionLimit
	cpu.Halt(err)
	return
}

// target checks a jump target against the instruction stream.
func (cpu *Cpu) target(addr int64) (pc uint32, err error) {
	if addr < 0 || addr > int64(len(cpu.code)) || addr%INSTRUCTION_SIZE != 0 {
		err = ErrJumpOutOfBounds
		return
	}

	pc = uint32(addr)
	return
}

// Execute executes a single instruction, and returns the offset of the
// instruction to run next. Instructions that did not come from Decode are
// checked with Validate first.
// No state is modified when an error is returned.
func (cpu *Cpu) Execute(ins Instruction, next uint32) (pc uint32, halt bool, err error) {
	pc = next

	err = ins.Validate()
	if err != nil {
		return
	}

	r := &cpu.Register
	a, b, c := ins.Operands[0], ins.Operands[1], ins.Operands[2]

	switch ins.Opcode {
	case OP_LOAD:
		r[a] = b
	case OP_ADD:
		r[c] = r[a] + r[b]
	case OP_SUB:
		r[c] = r[a] - r[b]
	case OP_MUL:
		r[c] = r[a] * r[b]
	case OP_DIV:
		if r[b] == 0 {
			err = ErrDivisionByZero
			return
		}
		quo, rem := r[a]/r[b], r[a]%r[b]
		r[c] = quo
		cpu.Remainder = rem
	case OP_HLT:
		halt = true
	case OP_JMP:
		pc, err = cpu.target(int64(a))
	case OP_JMPF:
		pc, err = cpu.target(int64(next) + int64(r[a]))
	case OP_JMPB:
		pc, err = cpu.target(int64(next) - int64(r[a]))
	case OP_EQ:
		cpu.Flag = r[a] == r[b]
	case OP_NEQ:
		cpu.Flag = r[a] != r[b]
	case OP_GTE:
		cpu.Flag = r[a] >= r[b]
	case OP_LTE:
		cpu.Flag = r[a] <= r[b]
	case OP_LT:
		cpu.Flag = r[a] < r[b]
	case OP_GT:
		cpu.Flag = r[a] > r[b]
	case OP_JEQ:
		if cpu.Flag {
			pc, err = cpu.target(int64(a))
		}
	case OP_JNEQ:
		if !cpu.Flag {
			pc, err = cpu.target(int64(a))
		}
	case OP_NOP:
		// pass
	case OP_ALOC:
		var base uint32
		base, err = cpu.Heap.Alloc(r[a])
		if err != nil {
			return
		}
		r[a] = int32(base)
	case OP_INC:
		r[a]++
	case OP_DEC:
		r[a]--
	case OP_PRTS:
		var str []byte
		str, err = cpu.Heap.CString(r[a])
		if err != nil {
			return
		}
		if cpu.Output != nil {
			_, err = cpu.Output.Write(str)
		}
	case OP_SHL:
		r[c] = r[a] << (uint32(r[b]) & 31)
	case OP_SHR:
		r[c] = r[a] >> (uint32(r[b]) & 31)
	case OP_AND:
		r[c] = r[a] & r[b]
	case OP_OR:
		r[c] = r[a] | r[b]
	case OP_XOR:
		r[c] = r[a] ^ r[b]
	case OP_NOT:
		r[b] = ^r[a]
	case OP_LUI:
		r[a] = int32(uint32(uint16(b))<<16 | uint32(r[a])&0xffff)
	case OP_CLOOP:
		cpu.LoopCounter = uint32(a)
	case OP_LOOP:
		if cpu.LoopCounter > 1 {
			pc, err = cpu.target(int64(a))
			if err != nil {
				return
			}
		}
		if cpu.LoopCounter > 0 {
			cpu.LoopCounter--
		}
	case OP_LOADM:
		var value int32
		value, err = cpu.Heap.Load32(r[a])
		if err != nil {
			return
		}
		r[b] = value
	case OP_SETM:
		err = cpu.Heap.Store32(r[a], r[b])
	case OP_PUSH:
		err = cpu.DataStack.Push(uint32(r[a]))
	case OP_POP:
		value, ok := cpu.DataStack.Pop()
		if !ok {
			err = ErrStackEmpty
			return
		}
		r[a] = int32(value)
	case OP_CALL:
		pc, err = cpu.target(int64(a))
		if err != nil {
			return
		}
		err = cpu.CallStack.Push(next)
	case OP_RET:
		value, ok := cpu.CallStack.Pop()
		if !ok {
			err = ErrCallStackUnderflow
			return
		}
		pc = value
	case OP_JMPR:
		pc, err = cpu.target(int64(r[a]))
	default:
		// OP_IGL, and anything that slipped past the decoder.
		err = ErrIllegalOpcode
	}

	return
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%9s: %04x\n", "pc", cpu.Pc)
	fmt.Fprintf(&sb, "%9s: %v\n", "flag", cpu.Flag)
	fmt.Fprintf(&sb, "%9s: %d\n", "remainder", cpu.Remainder)
	fmt.Fprintf(&sb, "%9s: %d\n", "loop", cpu.LoopCounter)
	fmt.Fprintf(&sb, "%9s: %d\n", "calls", cpu.CallStack.Depth())

	top, ok := cpu.DataStack.Peek()
	if ok {
		fmt.Fprintf(&sb, "%9s: %04X_%04X (depth %d)\n", "stack", top>>16, top&0xffff, cpu.DataStack.Depth())
	} else {
		fmt.Fprintf(&sb, "%9s: ----_----\n", "stack")
	}

	fmt.Fprintf(&sb, "%9s: %v\n", "heap", humanize.IBytes(uint64(cpu.Heap.Len())))
	fmt.Fprintf(&sb, "%9s: %v\n", "ticks", humanize.Comma(int64(cpu.Ticks)))

	for n := 0; n < REGISTER_COUNT; n += 4 {
		fmt.Fprintf(&sb, "%9s:", fmt.Sprintf("$%d-$%d", n, n+3))
		for _, val := range cpu.Register[n : n+4] {
			fmt.Fprintf(&sb, " %04X_%04X", uint32(val)>>16, uint32(val)&0xffff)
		}
		sb.WriteString("\n")
	}

	text = sb.String()
	return
}
