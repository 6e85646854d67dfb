package main

import (
	"fmt"

	"github.com/dylandreimerink/gobpfld/ebpf"
)

// Verdict is the outcome of classifying a single frame. Its values are the XDP action codes the kernel expects in r0.
type Verdict int32

const (
	// Discard drops the frame at the hook, before any further processing.
	Discard = Verdict(ebpf.XDP_DROP)
	// Admit lets the frame continue to the normal network stack.
	Admit = Verdict(ebpf.XDP_PASS)
)

func (v Verdict) String() string {
	switch v {
	case Admit:
		return "admit"
	case Discard:
		return "discard"
	}

	return fmt.Sprintf("verdict(%d)", int32(v))
}

// AssembleAction returns the instructions which end the program with this verdict.
func (v Verdict) AssembleAction() []string {
	return []string{
		fmt.Sprintf("	r0 = %d", int32(v)),
		"	exit",
	}
}

// verdictFromReturn maps the return value of a test run back to a verdict.
func verdictFromReturn(ret int32) (Verdict, error) {
	switch v := Verdict(ret); v {
	case Admit, Discard:
		return v, nil
	}

	return 0, fmt.Errorf("%w: %d", ErrUnexpectedAction, ret)
}
