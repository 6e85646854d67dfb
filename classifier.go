package main

import (
	"fmt"
	"strings"

	"github.com/dylandreimerink/gobpfld/ebpf"
	"github.com/google/gopacket/layers"
)

const (
	labelShortFrame = "short_frame"
	labelMismatch   = "ethertype_mismatch"
)

// shortFrameVerdict is returned for frames which are too short to hold an Ethernet header. The bounds check only
// guards memory access, it is not a security boundary, so frames which can't be inspected are let through.
const shortFrameVerdict = Admit

// Classifier admits frames carrying a single EtherType and discards everything else.
type Classifier struct {
	EtherType layers.EthernetType
}

// NewClassifier returns a classifier which only admits EtherCAT frames.
func NewClassifier() Classifier {
	return Classifier{EtherType: EtherTypeEtherCAT}
}

// Classify is the user space model of the XDP program generated by Assemble. It reads nothing beyond len(frame)
// and does not keep a reference to frame.
func (c Classifier) Classify(frame []byte) Verdict {
	proto, ok := etherType(frame)
	if !ok {
		return shortFrameVerdict
	}

	if proto != uint16(c.EtherType) {
		return Discard
	}

	return Admit
}

// Assemble generates the eBPF assembly of the XDP program.
func (c Classifier) Assemble() string {
	// Arguments
	// r1 = xdp_md
	asm := []string{
		fmt.Sprintf("# Classifier ethertype=%s (0x%04X)", c.EtherType, uint16(c.EtherType)),
		"	r2 = *(u32 *)(r1 + 4)           # r2 = xdp_md.data_end",
		"	r1 = *(u32 *)(r1 + 0)           # r1 = xdp_md.data",
		"	r3 = r1                         # r3 = packet bounds checking",
		fmt.Sprintf("	r3 += %d                        # r3 = xdp_md.data + sizeof(ethhdr)", EthHeaderLen),
		"	if r3 > r2 goto " + labelShortFrame + "   # if xdp_md.data + sizeof(ethhdr) > xdp_md.data_end",
		fmt.Sprintf("	r4 = *(u16 *)(r1 + %d)          # r4 = ethhdr.h_proto", EFEtherType.offset),
		// h_proto is loaded as-is, so compare against the value in network byte order
		fmt.Sprintf("	if r4 != %d goto %s", ebpf.HtonU16(uint16(c.EtherType)), labelMismatch),
		"# Match",
	}
	asm = append(asm, Admit.AssembleAction()...)

	asm = append(asm, labelMismatch+":")
	asm = append(asm, Discard.AssembleAction()...)

	asm = append(asm, labelShortFrame+":")
	asm = append(asm, shortFrameVerdict.AssembleAction()...)

	return strings.Join(asm, "\n") + "\n"
}

// Compile assembles the program into eBPF instructions.
func (c Classifier) Compile() ([]ebpf.Instruction, error) {
	inst, err := ebpf.AssemblyToInstructions("ecat-classifier", strings.NewReader(c.Assemble()))
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	return inst, nil
}
