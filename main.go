package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	logLevel   string

	cfg    *Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ecatxdp",
	Short: "XDP filter which only lets EtherCAT frames reach the network stack",
	Long: `ecatxdp attaches an XDP program to a network interface which admits frames with
EtherType 0x88A4 (EtherCAT) and drops every other frame before the kernel network stack
processes it. Frames too short to hold an Ethernet header are let through.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
			return err
		}
		if f := cmd.Flags().Lookup("interface"); f != nil {
			if err := v.BindPFlag("interface", f); err != nil {
				return err
			}
		}

		var err error
		cfg, err = LoadConfig(v, configFile)
		if err != nil {
			return err
		}

		logger, err = NewLogger(cfg.Log)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(1)
	}
}
