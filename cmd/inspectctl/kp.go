package main

import (
	"fmt"
	"strconv"

	"github.com/mmdatafocus/inspection_backend/chainage"
	"github.com/spf13/cobra"
)

var kpCmd = &cobra.Command{
	Use:   "kp",
	Short: "Convert chainage between KP text and metres",
}

var kpParseCmd = &cobra.Command{
	Use:   "parse <text>...",
	Short: "Parse KP text such as 5+250 into metres",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, text := range args {
			metres, ok := chainage.ParseKP(text)
			if !ok {
				return fmt.Errorf("cannot parse chainage %q", text)
			}
			cmd.Printf("%s\t%d\n", text, metres)
		}
		return nil
	},
}

var kpFormatCmd = &cobra.Command{
	Use:   "format <metres>...",
	Short: "Format metres as KP text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			metres, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("metres must be an integer: %q", arg)
			}
			cmd.Printf("%d\t%s\n", metres, chainage.FormatKP(metres))
		}
		return nil
	},
}

func init() {
	kpCmd.AddCommand(kpParseCmd, kpFormatCmd)
	rootCmd.AddCommand(kpCmd)
}
