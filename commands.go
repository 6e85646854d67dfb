package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach the classifier to an interface until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Interface == "" {
			return errors.New("no interface configured, use --interface or 'interface' in the config")
		}

		if _, err := ResolveInterface(cfg.Interface); err != nil {
			return err
		}

		prog, err := loadProgram()
		if err != nil {
			return err
		}

		if err := prog.Attach(cfg.Interface); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		return prog.Detach()
	},
}

var dumpLoad bool

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the generated program",
	RunE: func(cmd *cobra.Command, args []string) error {
		cls := cfg.Classifier()
		fmt.Fprint(cmd.OutOrStdout(), cls.Assemble())

		if !dumpLoad {
			return nil
		}

		opts := cfg.ProgramOptions()
		opts.VerboseVerifier = true
		prog, err := NewProgram(cls, opts, logger)
		if err != nil {
			return err
		}

		log, err := prog.Load()
		fmt.Fprintf(cmd.OutOrStdout(), "\nVerifier log:\n%s\n", log)
		if err != nil {
			return err
		}

		return prog.Disassemble(cmd.OutOrStdout())
	},
}

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List interfaces which could carry EtherCAT",
	RunE: func(cmd *cobra.Command, args []string) error {
		links, err := Interfaces()
		if err != nil {
			return err
		}

		for _, link := range links {
			attrs := link.Attrs()
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", attrs.Name, attrs.HardwareAddr, attrs.OperState)
		}

		return nil
	},
}

var replayKernel bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture.pcap>",
	Short: "Classify the frames of a pcap capture offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		replayer := &Replayer{
			Classifier: cfg.Classifier(),
			Logger:     logger,
		}
		if replayKernel {
			replayer.Program, err = loadProgram()
			if err != nil {
				return err
			}
		}

		report, err := replayer.Replay(f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "frames: %d admitted: %d discarded: %d short: %d\n",
			report.Frames, report.Admitted, report.Discarded, report.Short)
		for _, t := range report.EtherTypes() {
			fmt.Fprintf(out, "  0x%04X %-20s %d\n", uint16(t), t, report.PerEtherType[t])
		}
		if replayKernel {
			fmt.Fprintf(out, "kernel checked: %d skipped: %d mismatches: %d\n",
				report.KernelChecked, report.KernelSkipped, report.Mismatches)
			if report.Mismatches > 0 {
				return fmt.Errorf("%d verdict mismatches between kernel program and model", report.Mismatches)
			}
		}

		return nil
	},
}

func init() {
	attachCmd.Flags().StringP("interface", "i", "", "interface to attach to")
	dumpCmd.Flags().BoolVar(&dumpLoad, "load", false, "load the program and print the verifier log and disassembly")
	replayCmd.Flags().BoolVar(&replayKernel, "kernel", false, "also run every frame through the kernel program (requires root)")
}

func loadProgram() (*Program, error) {
	prog, err := NewProgram(cfg.Classifier(), cfg.ProgramOptions(), logger)
	if err != nil {
		return nil, err
	}

	log, err := prog.Load()
	if err != nil {
		logger.WithError(err).Error("verifier rejected program")
		fmt.Fprintln(os.Stderr, log)
		return nil, err
	}
	if cfg.Verifier.Verbose {
		logger.WithField("verifier", log).Debug("verifier log")
	}

	logger.WithFields(logrus.Fields{
		"ethertype": cfg.Classifier().EtherType,
	}).Info("classifier loaded")

	return prog, nil
}
