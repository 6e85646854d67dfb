package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

// ReplayReport holds the totals of a replayed capture.
type ReplayReport struct {
	Frames    int
	Admitted  int
	Discarded int
	// Short counts frames below the ethernet header length, these are also counted as admitted.
	Short int
	// Mismatches counts frames for which the kernel program and the model disagree.
	Mismatches int
	// KernelChecked counts frames which went through the kernel program.
	KernelChecked int
	// KernelSkipped counts frames of at least header length which the kernel does not accept as test input,
	// the model alone decides those.
	KernelSkipped int
	PerEtherType  map[layers.EthernetType]int
}

// EtherTypes returns the EtherTypes seen in the capture in ascending order.
func (r *ReplayReport) EtherTypes() []layers.EthernetType {
	types := make([]layers.EthernetType, 0, len(r.PerEtherType))
	for t := range r.PerEtherType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Replayer classifies the frames of a pcap capture offline. If Program is set, every frame the kernel accepts as
// test input is also run through the loaded XDP program and compared with the model. Frames are numbered from 0.
type Replayer struct {
	Classifier Classifier
	Program    *Program
	Logger     *logrus.Logger
}

func (r *Replayer) Replay(in io.Reader) (*ReplayReport, error) {
	reader, err := pcapgo.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("pcap: %w", err)
	}

	if lt := reader.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("pcap: unsupported link type %s", lt)
	}

	report := &ReplayReport{
		PerEtherType: make(map[layers.EthernetType]int),
	}

	for index := 0; ; index++ {
		data, _, err := reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return report, fmt.Errorf("frame %d: %w", index, err)
		}

		if err := r.replayFrame(report, index, data); err != nil {
			return report, fmt.Errorf("frame %d: %w", index, err)
		}
	}

	return report, nil
}

func (r *Replayer) replayFrame(report *ReplayReport, index int, frame []byte) error {
	report.Frames++

	verdict := r.Classifier.Classify(frame)
	switch verdict {
	case Admit:
		report.Admitted++
	case Discard:
		report.Discarded++
	}

	proto, ok := etherType(frame)
	if !ok {
		report.Short++
		return nil
	}
	report.PerEtherType[layers.EthernetType(proto)]++

	if r.Program == nil {
		return nil
	}

	kernelVerdict, err := r.Program.Test(frame)
	if errors.Is(err, ErrFrameTooLarge) {
		report.KernelSkipped++
		r.Logger.WithFields(logrus.Fields{
			"frame": index,
			"len":   len(frame),
		}).Debug("frame too large for kernel test run")
		return nil
	}
	if err != nil {
		return err
	}
	report.KernelChecked++

	if kernelVerdict != verdict {
		report.Mismatches++
		r.Logger.WithFields(logrus.Fields{
			"frame":     index,
			"ethertype": layers.EthernetType(proto),
			"model":     verdict,
			"kernel":    kernelVerdict,
		}).Warn("verdict mismatch")
	}

	return nil
}
