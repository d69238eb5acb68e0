package emulator

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ezrec/lrvm/cpu"
)

func TestEmulator(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	assert.False(emu.Verbose)
	assert.NotNil(emu.Cpu)
	assert.NotEqual(uuid.Nil, emu.Id)
	assert.NotEqual(emu.Id, NewEmulator().Id)

	done, err := emu.Step()
	assert.True(done)
	assert.ErrorIs(err, ErrNoSource)
	assert.ErrorIs(emu.Run(0), ErrNoSource)
	assert.ErrorIs(emu.Reset(), ErrNoSource)
}

func TestEmulatorDefines(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	defines := map[string]string{}
	var names []string
	for name, value := range emu.Defines() {
		defines[name] = value
		names = append(names, name)
	}

	assert.Equal("ISA_VERSION", names[0])
	assert.Equal("1", defines["ISA_VERSION"])
	assert.Equal("32", defines["REGISTER_COUNT"])
	assert.Equal("1024", defines["STACK_LIMIT"])

	err := emu.LoadSource("LOAD $0 $(ISA_VERSION + STACK_LIMIT)")
	assert.NoError(err)
	assert.NoError(emu.Run(0))

	value, err := emu.Register(0)
	assert.NoError(err)
	assert.Equal(int32(1025), value)
}

func doRunSingle(t *testing.T, emu *Emulator, program []string) {
	assert := assert.New(t)

	err := emu.LoadSource(strings.Join(program, "\n"))
	if err != nil {
		t.Fatal(err)
	}

	for _, line := range emu.Program.Lines {
		here := program[line.LineNo-1]
		assert.Equal(line.LineNo, emu.LineNo(), here)
		assert.Equal(line.Ip, emu.Pc(), here)

		ins, err := emu.Code()
		assert.NoError(err, here)
		assert.Equal(line.Instruction, ins, here)

		done, err := emu.Step()
		assert.NoError(err, here)
		if err != nil {
			t.Log(emu.String())
			t.Fatalf("%v", err)
		}
		assert.False(done, here)
	}

	done, err := emu.Step()
	assert.NoError(err)
	assert.True(done)
	assert.True(emu.Halted())
}

func TestEmulatorRegisters(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	program := []string{
		".equ CONST_10 0x10",
		"LOAD $0 CONST_10",
		"LOAD $1 $(CONST_10 + CONST_10)",
		".equ CONST_30 $(2 * CONST_10 + CONST_10)",
		"LOAD $2 CONST_30",
		"LOAD $3 $(LINENO * 8 + 0x10)",
		"EQ $0 $0",
	}

	doRunSingle(t, emu, program)

	regs := emu.Registers()
	assert.Equal(int32(0x10), regs[0])
	assert.Equal(int32(0x20), regs[1])
	assert.Equal(int32(0x30), regs[2])
	assert.Equal(int32(0x40), regs[3])
	assert.True(emu.Flag())
	assert.Equal(5, emu.Ticks())

	_, err := emu.Register(32)
	assert.ErrorIs(err, cpu.ErrRegisterInvalid)
	_, err = emu.Register(-1)
	assert.ErrorIs(err, cpu.ErrRegisterInvalid)
}

func TestEmulatorLabel(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	program := []string{
		"JMP R0",
		"AddOneToR0:",
		"INC $0",
		"RET",
		"R1: LOAD $1 #0x20",
		"JMP R2",
		"R0: AND_ALSO:",
		"LOAD $0 #0x10",
		"JMP R1",
		"R2:",
		"CALL AddOneToR0",
		"CALL AddOneToR0",
		"",
		"LOAD $2 #0x30",
		"LOAD $3 #0x40",
		"DIV $3 $2 $4",
	}

	err := emu.LoadSource(strings.Join(program, "\n"))
	assert.NoError(err)
	assert.NoError(emu.Run(0))

	regs := emu.Registers()
	assert.Equal(int32(0x12), regs[0])
	assert.Equal(int32(0x20), regs[1])
	assert.Equal(int32(1), regs[4])
	assert.Equal(int32(0x10), emu.Remainder())
}

func TestEmulatorRuntimeError(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	program := []string{
		"LOAD $0 #1",
		"; divide by zero",
		"DIV $0 $1 $2",
	}

	err := emu.LoadSource(strings.Join(program, "\n"))
	assert.NoError(err)

	err = emu.Run(0)
	assert.ErrorIs(err, cpu.ErrDivisionByZero)

	var runtime *ErrRuntime
	if assert.ErrorAs(err, &runtime) {
		assert.Equal(3, runtime.LineNo)
	}
	assert.Equal(3, emu.LineNo())
	assert.Equal(uint32(4), emu.Pc())
	assert.True(emu.Halted())

	done, err := emu.Step()
	assert.True(done)
	assert.ErrorIs(err, cpu.ErrDivisionByZero)

	// Reset reruns the program from the start.
	assert.NoError(emu.Reset())
	assert.False(emu.Halted())
	done, err = emu.Step()
	assert.False(done)
	assert.NoError(err)
	assert.Equal(int32(1), emu.Registers()[0])
}

func TestEmulatorLoadProgram(t *testing.T) {
	assert := assert.New(t)

	data, err := cpu.Assemble("LOAD $0 #8\nALOC $0\nLOAD $1 #0x4241\nSETM $0 $1\nPRTS $0")
	assert.NoError(err)

	emu := NewEmulator()
	var output bytes.Buffer
	emu.Cpu.Output = &output

	assert.NoError(emu.LoadProgram(data))
	assert.Nil(emu.Program)
	assert.Equal(0, emu.LineNo())
	assert.NoError(emu.Run(0))
	assert.Equal("AB", output.String())

	heap, err := emu.HeapSlice(0, 4)
	assert.NoError(err)
	assert.Equal([]byte{0x41, 0x42, 0, 0}, heap)

	// HeapSlice is a copy.
	heap[0] = 0
	again, _ := emu.HeapSlice(0, 1)
	assert.Equal([]byte{0x41}, again)

	_, err = emu.HeapSlice(4, 8)
	assert.ErrorIs(err, cpu.ErrOutOfBounds)

	// Reload keeps the heap; Reset clears it.
	assert.NoError(emu.LoadProgram(data))
	assert.NoError(emu.Run(0))
	assert.Equal(int32(8), emu.Registers()[0])
	assert.Equal("ABAB", output.String())
	assert.NoError(emu.Reset())
	assert.NoError(emu.Run(0))
	assert.Equal(int32(0), emu.Registers()[0])
}

func TestEmulatorLoadErrors(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	err := emu.LoadProgram([]byte("ELF\x01"))
	assert.ErrorIs(err, cpu.ErrLoad)
	assert.ErrorIs(err, cpu.ErrImageTruncated)

	err = emu.LoadProgram([]byte("LRVM\x07"))
	assert.ErrorIs(err, cpu.ErrImageVersion)

	err = emu.LoadSource("NOP\nloop: NOP\nloop: HLT")
	assert.ErrorIs(err, cpu.ErrLabelDuplicate)
	var syn *cpu.ErrSyntax
	if assert.ErrorAs(err, &syn) {
		assert.Equal(3, syn.LineNo)
		assert.Equal("duplicate label", syn.Category())
	}

	// Failed loads leave the emulator unloaded.
	done, err := emu.Step()
	assert.True(done)
	assert.ErrorIs(err, ErrNoSource)
}

func TestEmulatorInstructionLimit(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	err := emu.LoadSource("top: INC $0\nJMP top")
	assert.NoError(err)

	err = emu.Run(11)
	assert.ErrorIs(err, cpu.ErrInstructionLimit)
	assert.True(errors.Is(err, cpu.ErrInstructionLimit))
	assert.Equal(int32(6), emu.Registers()[0])
	assert.Equal(2, emu.LineNo())
}

func TestEmulatorString(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	assert.NoError(emu.LoadSource("LOAD $0 #1"))
	assert.NoError(emu.Run(0))

	text := emu.String()
	assert.Contains(text, emu.Id.String())
	assert.Contains(text, "$0-$3: 0000_0001")
}

func TestEmulatorFailedLoad(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	assert.NoError(emu.LoadSource("LOAD $0 #7\nHLT"))

	err := emu.LoadProgram([]byte("JUNKxxxx"))
	assert.ErrorIs(err, cpu.ErrImageMagic)
	assert.Nil(emu.Program)
	assert.ErrorIs(emu.Run(0), ErrNoSource)
	assert.Equal(int32(0), emu.Registers()[0])
	assert.ErrorIs(emu.Reset(), ErrNoSource)

	assert.NoError(emu.LoadSource("LOAD $0 #7\nHLT"))
	assert.NotNil(emu.Program)

	err = emu.LoadSource("LOAD $0")
	assert.Error(err)
	assert.Nil(emu.Program)
	done, err := emu.Step()
	assert.True(done)
	assert.ErrorIs(err, ErrNoSource)

	// A data segment that does not fit the heap fails the load.
	assert.NoError(emu.LoadSource("HLT"))
	emu.Cpu.Heap.Limit = 2
	err = emu.LoadSource(".data\n.asciiz 'long'\n.code\nHLT")
	assert.ErrorIs(err, cpu.ErrLoad)
	assert.ErrorIs(err, cpu.ErrOutOfBounds)
	assert.ErrorIs(emu.Run(0), ErrNoSource)
}

// panicWriter fails every write by panicking.
type panicWriter struct {
	calls int
}

func (pw *panicWriter) Write(data []byte) (n int, err error) {
	pw.calls++
	panic("output device failed")
}

func TestEmulatorPanic(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	pw := &panicWriter{}
	emu.Cpu.Output = pw

	err := emu.LoadSource(strings.Join([]string{
		".data",
		"msg: .asciiz 'boom'",
		".code",
		"LOAD $0 msg",
		"PRTS $0",
		"INC $1",
	}, "\n"))
	assert.NoError(err)

	err = emu.Run(0)
	assert.ErrorIs(err, ErrPanic)
	assert.True(emu.Halted())
	assert.Equal(1, pw.calls)

	// The faulting instruction is not retried.
	done, err := emu.Step()
	assert.True(done)
	assert.ErrorIs(err, ErrPanic)
	assert.Equal(1, pw.calls)
	assert.Equal(int32(0), emu.Registers()[1])

	assert.NoError(emu.Reset())
	done, err = emu.Step()
	assert.False(done)
	assert.NoError(err)

	done, err = emu.Step()
	assert.True(done)
	assert.ErrorIs(err, ErrPanic)
	assert.True(emu.Halted())
	assert.Equal(2, pw.calls)

	done, err = emu.Step()
	assert.True(done)
	assert.ErrorIs(err, ErrPanic)
	assert.Equal(2, pw.calls)
	assert.Equal(int32(0), emu.Registers()[1])
}

func TestEmulatorDataSegment(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	var output bytes.Buffer
	emu.Cpu.Output = &output

	err := emu.LoadSource(strings.Join([]string{
		"  .data",
		"hello: .asciiz 'Hello everyone!'",
		".code",
		"LOAD $0 hello",
		"PRTS $0",
		"hlt",
	}, "\n"))
	assert.NoError(err)
	assert.NoError(emu.Run(0))
	assert.Equal("Hello everyone!", output.String())

	heap, err := emu.HeapSlice(0, 16)
	assert.NoError(err)
	assert.Equal([]byte("Hello everyone!\x00"), heap)

	// The image carries the data segment.
	data, err := emu.Program.Binary()
	assert.NoError(err)

	other := NewEmulator()
	other.Cpu.Output = &output
	assert.NoError(other.LoadProgram(data))
	assert.NoError(other.Run(0))
	assert.Equal("Hello everyone!Hello everyone!", output.String())
}
