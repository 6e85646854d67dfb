package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dylandreimerink/gobpfld"
	"github.com/dylandreimerink/gobpfld/bpftypes"
	"github.com/dylandreimerink/gobpfld/ebpf"
	"github.com/sirupsen/logrus"
)

// License is handed to the kernel when loading the program, it has no effect on the classification.
const License = "GPL"

const programName = "ecat_filter"

// defaultVerifierLogSize is the verifier log buffer used for verbose loads unless configured otherwise.
const defaultVerifierLogSize = 1024 * 1024 * 2

// The kernel runs XDP test input from a single page, behind XDP_PACKET_HEADROOM and in front of the
// skb_shared_info tailroom.
const (
	xdpTestHeadroom = 256
	xdpTestTailroom = 320
)

var (
	ErrFrameTooShort    = errors.New("frame shorter than ethernet header")
	ErrFrameTooLarge    = errors.New("frame larger than xdp test run limit")
	ErrUnexpectedAction = errors.New("unexpected xdp action")
	ErrNotLoaded        = errors.New("program not loaded")
)

// ProgramOptions control how the program is loaded into the kernel.
type ProgramOptions struct {
	// VerboseVerifier requests the full verifier log on load.
	VerboseVerifier bool
	// VerifierLogSize is the size of the verbose verifier log buffer in bytes, 0 uses defaultVerifierLogSize.
	VerifierLogSize int
}

// Program is a classifier compiled into an XDP program.
type Program struct {
	Classifier Classifier

	bpf      *gobpfld.BPFProgram
	opts     ProgramOptions
	logger   *logrus.Logger
	loaded   bool
	attached bool
}

// NewProgram compiles cls and encodes it. The result is not yet loaded into the kernel.
func NewProgram(cls Classifier, opts ProgramOptions, logger *logrus.Logger) (*Program, error) {
	inst, err := cls.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	rawInst, err := ebpf.Encode(inst)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return &Program{
		Classifier: cls,
		bpf: &gobpfld.BPFProgram{
			Name:         gobpfld.MustNewObjName(programName),
			License:      License,
			Instructions: rawInst,
		},
		opts:   opts,
		logger: logger,
	}, nil
}

// Load loads the program into the kernel. The verifier log is returned, also when the verifier rejects the program.
func (p *Program) Load() (string, error) {
	settings := gobpfld.BPFProgramLoadSettings{
		ProgramType: bpftypes.BPF_PROG_TYPE_XDP,
	}
	if p.opts.VerboseVerifier {
		settings.VerifierLogLevel = bpftypes.BPFLogLevelVerbose
		settings.VerifierLogSize = defaultVerifierLogSize
		if p.opts.VerifierLogSize > 0 {
			settings.VerifierLogSize = p.opts.VerifierLogSize
		}
	}

	log, err := p.bpf.Load(settings)
	if err != nil {
		return log, fmt.Errorf("load: %w", err)
	}

	p.loaded = true
	p.logger.WithFields(logrus.Fields{
		"program":   programName,
		"ethertype": p.Classifier.EtherType,
	}).Debug("program loaded")

	return log, nil
}

// MaxTestFrameLen is the largest frame Test accepts on this machine.
func MaxTestFrameLen() int {
	return os.Getpagesize() - xdpTestHeadroom - xdpTestTailroom
}

// Test runs the loaded program once over frame and returns its verdict. The kernel refuses test input which is
// shorter than an Ethernet header or does not fit in one page, such frames are rejected with ErrFrameTooShort and
// ErrFrameTooLarge.
func (p *Program) Test(frame []byte) (Verdict, error) {
	if !p.loaded {
		return 0, ErrNotLoaded
	}

	if len(frame) < EthHeaderLen {
		return 0, ErrFrameTooShort
	}

	if len(frame) > MaxTestFrameLen() {
		return 0, ErrFrameTooLarge
	}

	result, err := p.bpf.XDPTestProgram(gobpfld.TestXDPProgSettings{
		Data: frame,
	})
	if err != nil {
		return 0, fmt.Errorf("test run: %w", err)
	}

	return verdictFromReturn(result.ReturnValue)
}

// Attach attaches the loaded program to the XDP hook of the given interface.
func (p *Program) Attach(iface string) error {
	if !p.loaded {
		return ErrNotLoaded
	}

	err := p.bpf.XDPLinkAttach(gobpfld.BPFProgramXDPLinkAttachSettings{
		InterfaceName: iface,
	})
	if err != nil {
		return fmt.Errorf("attach '%s': %w", iface, err)
	}

	p.attached = true
	p.logger.WithField("iface", iface).Info("classifier attached")

	return nil
}

// Detach removes the program from every interface it was attached to.
func (p *Program) Detach() error {
	if !p.attached {
		return nil
	}

	err := p.bpf.XDPLinkDetach(gobpfld.BPFProgramXDPLinkDetachSettings{
		All: true,
	})
	if err != nil {
		return fmt.Errorf("detach: %w", err)
	}

	p.attached = false
	p.logger.Info("classifier detached")

	return nil
}

// Disassemble writes the decoded instructions of the program to w.
func (p *Program) Disassemble(w io.Writer) error {
	return p.bpf.DecodeToReader(w)
}
