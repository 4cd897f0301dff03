// Package vm is an EVM interpreter: a stack machine over 256-bit words
// with gas accounting, message-call recursion bounded to depth 1024, and
// a narrow Ext seam for state access. The vm.NewEVM/vm.Config call shape
// visible in tests/state_test_util.go informs the package's API surface;
// no interpreter source file itself was retrieved alongside it, so the
// opcode dispatch table here is this repo's own implementation built to
// that call shape.
package vm

import (
	"github.com/pkg/errors"

	"github.com/holiman/uint256"
)

const maxStackSize = 1024

var ErrStackUnderflow = errors.New("stack underflow")
var ErrStackOverflow = errors.New("stack overflow")

// Stack is the 256-bit-word operand stack every opcode operates on.
type Stack struct {
	data []uint256.Int
}

func NewStack() *Stack { return &Stack{data: make([]uint256.Int, 0, 16)} }

func (s *Stack) Push(v *uint256.Int) error {
	if len(s.data) >= maxStackSize {
		return ErrStackOverflow
	}
	s.data = append(s.data, *v)
	return nil
}

func (s *Stack) Pop() (uint256.Int, error) {
	if len(s.data) == 0 {
		return uint256.Int{}, ErrStackUnderflow
	}
	n := len(s.data) - 1
	v := s.data[n]
	s.data = s.data[:n]
	return v, nil
}

func (s *Stack) Peek(depth int) (*uint256.Int, error) {
	n := len(s.data) - 1 - depth
	if n < 0 {
		return nil, ErrStackUnderflow
	}
	return &s.data[n], nil
}

func (s *Stack) Len() int { return len(s.data) }

func (s *Stack) Dup(n int) error {
	v, err := s.Peek(n - 1)
	if err != nil {
		return err
	}
	cp := *v
	return s.Push(&cp)
}

func (s *Stack) Swap(n int) error {
	top, err := s.Peek(0)
	if err != nil {
		return err
	}
	other, err := s.Peek(n)
	if err != nil {
		return err
	}
	*top, *other = *other, *top
	return nil
}
