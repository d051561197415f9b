package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mikeyg42/framecoder/internal/capture"
	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
)

var codecsCmd = &cobra.Command{
	Use:   "codecs",
	Short: "List codecs and whether this binary includes their backend",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		built := make(map[encoder.Codec]bool)
		for _, c := range encoder.Available() {
			built[c] = true
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODEC\tAVAILABLE")
		for _, c := range encoder.Known() {
			fmt.Fprintf(w, "%s\t%t\n", c, built[c])
		}
		return w.Flush()
	},
}

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List video input devices",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		devices := capture.ListCameras()
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no cameras found")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEVICE ID\tLABEL")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\n", d.DeviceID, d.Label)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(codecsCmd, camerasCmd)
}
