// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"fmt"
	"iter"
	"log"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ezrec/lrvm/cpu"
	"github.com/ezrec/lrvm/internal"
)

var _emulator_defines = map[string]string{
	"ISA_VERSION": fmt.Sprintf("%v", cpu.ISA_VERSION),
}

// Emulator state. CPU + program listing.
type Emulator struct {
	Verbose bool         // If set, enables verbose logging.
	Id      uuid.UUID    // Instance identity, for logs and scheduler results.
	Cpu     *cpu.Cpu     // Reference to the CPU simulation.
	Program *cpu.Program // Listing of the loaded program; nil if loaded from an image.

	loaded bool
}

// NewEmulator creates a new emulator.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		Id:  uuid.New(),
		Cpu: &cpu.Cpu{},
	}

	return
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(internal.IterSeq2Sorted(_emulator_defines),
		cpu.Defines(),
	)
}

// unload forgets the current program.
func (emu *Emulator) unload() {
	emu.loaded = false
	emu.Program = nil
}

// LoadProgram validates and loads a program image.
// The heap is kept, apart from the image's data segment; see Reset.
// On error, no program is loaded.
func (emu *Emulator) LoadProgram(data []byte) (err error) {
	emu.unload()

	img, err := cpu.ParseImage(data)
	if err != nil {
		return
	}

	if emu.Verbose {
		log.Printf("%v: load image, %v instructions", emu.Id, len(img.Code)/cpu.INSTRUCTION_SIZE)
	}

	emu.Cpu.Verbose = emu.Verbose
	err = emu.Cpu.Load(img)
	if err != nil {
		return
	}

	emu.loaded = true

	return
}

// LoadSource assembles and loads a program, keeping its listing.
// On error, no program is loaded.
func (emu *Emulator) LoadSource(source string) (err error) {
	emu.unload()

	asm := &cpu.Assembler{Verbose: emu.Verbose}
	for key, value := range maps.All(_emulator_defines) {
		asm.Predefine(key, value)
	}

	prog, err := asm.Parse(strings.NewReader(source))
	if err != nil {
		return
	}

	data, err := prog.Binary()
	if err != nil {
		return
	}

	err = emu.LoadProgram(data)
	if err != nil {
		return
	}

	emu.Program = prog

	return
}

// Reset the emulator state, heap included, to rerun the loaded program.
func (emu *Emulator) Reset() (err error) {
	if !emu.loaded {
		err = ErrNoSource
		return
	}

	emu.Cpu.Verbose = emu.Verbose
	emu.Cpu.Reset()

	return
}

// runtime locates an error at the current line.
func (emu *Emulator) runtime(err error) error {
	return &ErrRuntime{LineNo: emu.LineNo(), Err: err}
}

// panicked converts a recovered panic into an error, and halts the CPU
// with it.
func (emu *Emulator) panicked(r any) (err error) {
	err = errors.Wrapf(ErrPanic, "%v: pc %04x: %v", emu.Id, emu.Cpu.Pc, r)
	emu.Cpu.Halt(err)
	return
}

// Step performs a single instruction step of the emulator.
func (emu *Emulator) Step() (done bool, err error) {
	if !emu.loaded {
		return true, ErrNoSource
	}

	// Set CPU verbosity
	emu.Cpu.Verbose = emu.Verbose

	defer func() {
		if r := recover(); r != nil {
			done = true
			err = emu.panicked(r)
		}
	}()

	done, err = emu.Cpu.Step()
	if err != nil {
		err = emu.runtime(err)
	}

	return
}

// Run the emulator until it halts, or maxSteps instructions have been
// stepped (if non-zero).
func (emu *Emulator) Run(maxSteps uint64) (err error) {
	if !emu.loaded {
		return ErrNoSource
	}

	emu.Cpu.Verbose = emu.Verbose

	defer func() {
		if r := recover(); r != nil {
			err = emu.panicked(r)
		}
	}()

	err = emu.Cpu.Run(maxSteps)
	if err != nil {
		err = emu.runtime(err)
	}

	if emu.Verbose {
		log.Printf("%v: halted after %v ticks: %v", emu.Id, emu.Cpu.Ticks, err)
	}

	return
}

// Registers returns a copy of the register bank.
func (emu *Emulator) Registers() [cpu.REGISTER_COUNT]int32 {
	return emu.Cpu.Register
}

// Register returns the value of a single register.
func (emu *Emulator) Register(n int) (value int32, err error) {
	if n < 0 || n >= cpu.REGISTER_COUNT {
		err = cpu.ErrRegisterInvalid
		return
	}

	value = emu.Cpu.Register[n]
	return
}

// Flag returns the comparison flag.
func (emu *Emulator) Flag() bool {
	return emu.Cpu.Flag
}

// Pc returns the current program counter.
func (emu *Emulator) Pc() uint32 {
	return emu.Cpu.Pc
}

// Remainder returns the remainder of the last division.
func (emu *Emulator) Remainder() int32 {
	return emu.Cpu.Remainder
}

// Halted returns true once the program has stopped.
func (emu *Emulator) Halted() bool {
	return emu.Cpu.Halted()
}

// HeapSlice returns a copy of size heap bytes at offset.
func (emu *Emulator) HeapSlice(offset int32, size int) (data []byte, err error) {
	data, err = emu.Cpu.Heap.Slice(offset, size)
	if err != nil {
		return
	}

	data = slices.Clone(data)
	return
}

// Ticks returns the total ticks since a load or reset.
func (emu *Emulator) Ticks() int {
	return emu.Cpu.Ticks
}

// Code returns the instruction at the program counter.
func (emu *Emulator) Code() (ins cpu.Instruction, err error) {
	ins, _, err = cpu.Decode(emu.Cpu.Code(), emu.Cpu.Pc)
	return
}

// LineNo returns the current line number for the executing opcode.
func (emu *Emulator) LineNo() int {
	if emu.Program == nil {
		return 0
	}

	dbg := emu.Program.Debug(emu.Cpu.Pc)
	if dbg.Line == nil {
		return 0
	}

	return dbg.LineNo
}

// String returns the emulator state as a string.
func (emu *Emulator) String() string {
	return fmt.Sprintf("%9s: %v\n", "id", emu.Id) + emu.Cpu.String()
}
