// Package cpu implements the register virtual machine and assembler of lrvm.
//
// The machine has thirty-two signed 32-bit registers ($0-$31), a program
// counter over a fixed-width (four byte) instruction stream, a comparison
// flag, a growable bounds-checked heap, a data stack and a call stack.
// Every malformed program halts the machine with an error; it never panics.
//
// The assembler translates line-oriented mnemonic source into a program
// image, supporting labels (forward references included), equates, and
// compile-time expression evaluation.
package cpu
