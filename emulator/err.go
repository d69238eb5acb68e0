package emulator

import (
	"errors"
	"strconv"

	"github.com/ezrec/lrvm/translate"
)

var f = translate.From

var (
	ErrPanic    = errors.New(f("emulator panic"))
	ErrNoSource = errors.New(f("no program loaded"))
)

// ErrRuntime indicates the location of a runtime error.
type ErrRuntime struct {
	LineNo int
	Err    error
}

func (err *ErrRuntime) Error() string {
	if err.LineNo == 0 {
		return err.Err.Error()
	}
	return f("line %v %v", strconv.Itoa(err.LineNo), err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}
