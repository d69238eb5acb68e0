// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/ezrec/lrvm/emulator"
	"github.com/ezrec/lrvm/translate"
)

func main() {
	var compile string
	var image string
	var output string
	var save bool
	var steps uint64
	var verbose bool
	var lang string

	flag.StringVar(&compile, "c", "", ".lrvm assembly file to compile")
	flag.StringVar(&image, "i", "", "Program image to load")
	flag.StringVar(&output, "o", "", "Write program image")
	flag.BoolVar(&save, "s", false, "Save program image, do not execute")
	flag.Uint64Var(&steps, "n", 0, "Instruction budget (0 is unlimited)")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.StringVar(&lang, "lang", "", "Message locale")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	if len(lang) != 0 {
		translate.Use(lang)
	}

	if (len(compile) == 0) == (len(image) == 0) {
		log.Fatalf("%v: exactly one of -c or -i is required", os.Args[0])
	}

	emu := emulator.NewEmulator()
	emu.Verbose = verbose
	emu.Cpu.Output = os.Stdout

	// Compile a new instruction stream.
	if len(compile) != 0 {
		source, err := os.ReadFile(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}

		err = emu.LoadSource(string(source))
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
	} else {
		data, err := os.ReadFile(image)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}

		err = emu.LoadProgram(data)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}
	}

	if len(output) != 0 {
		if emu.Program == nil {
			log.Fatalf("%v: -o requires -c", output)
		}
		data, err := emu.Program.Binary()
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		err = os.WriteFile(output, data, 0o644)
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		if verbose {
			log.Printf("%v: wrote %v", output, humanize.IBytes(uint64(len(data))))
		}
	}

	if save {
		return
	}

	err := emu.Run(steps)
	if err != nil {
		fmt.Fprint(os.Stderr, emu.String())
		var runtime *emulator.ErrRuntime
		if errors.As(err, &runtime) && runtime.LineNo != 0 {
			log.Fatalf("%v:%v", compile, err)
		}
		log.Fatal(err)
	}

	if verbose {
		fmt.Fprint(os.Stderr, emu.String())
	}
}
