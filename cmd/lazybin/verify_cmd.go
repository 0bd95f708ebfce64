package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check every offset, index, and table in a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadContainer(args[0])
			if err != nil {
				return err
			}
			if err := f.Verify(); err != nil {
				return err
			}
			fmt.Println(color.GreenString("%s: ok", args[0]))
			return nil
		},
	}
}
