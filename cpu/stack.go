package cpu

const (
	STACK_LIMIT = 1024 // Default maximum stack depth
)

// Stack is a bounded LIFO of 32-bit values. It backs both the call stack
// (return addresses) and the data stack (PUSH/POP).
type Stack struct {
	Limit int // Maximum depth; STACK_LIMIT if zero.
	Data  []uint32
}

func (s *Stack) limit() int {
	if s.Limit <= 0 {
		return STACK_LIMIT
	}
	return s.Limit
}

// Push pushes a value, failing with ErrStackFull at the depth limit.
func (s *Stack) Push(value uint32) (err error) {
	if s.Full() {
		err = ErrStackFull
		return
	}
	s.Data = append(s.Data, value)
	return
}

func (s *Stack) Pop() (value uint32, ok bool) {
	value, ok = s.Peek()
	if ok {
		s.Data = s.Data[:len(s.Data)-1]
	}
	return
}

func (s *Stack) Empty() bool {
	return len(s.Data) == 0
}

func (s *Stack) Full() bool {
	return len(s.Data) >= s.limit()
}

func (s *Stack) Depth() int {
	return len(s.Data)
}

func (s *Stack) Peek() (value uint32, ok bool) {
	if s.Empty() {
		return
	}

	return s.Data[len(s.Data)-1], true
}

func (s *Stack) Reset() {
	if len(s.Data) > 0 {
		s.Data = s.Data[:0]
	}
}
