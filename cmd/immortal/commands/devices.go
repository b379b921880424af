package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/immortal-app/immortal/pkg/audioio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audioio.CaptureDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("no capture devices found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDEFAULT")
		for _, d := range devices {
			mark := ""
			if d.IsDefault {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\n", d.Name, mark)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
