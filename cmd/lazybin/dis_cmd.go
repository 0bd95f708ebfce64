package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudcmds/lazybin/dis"
)

func newDisCommand() *cobra.Command {
	var unitIndex int
	var objectIndex int

	cmd := &cobra.Command{
		Use:   "dis <file>",
		Short: "Disassemble a code unit or a maker program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadContainer(args[0])
			if err != nil {
				return err
			}

			var instructions []dis.Instruction
			switch {
			case cmd.Flags().Changed("object"):
				instructions, err = dis.Object(f, objectIndex)
			default:
				instructions, err = dis.Unit(f, unitIndex)
			}
			if err != nil {
				return err
			}

			dis.Print(instructions, os.Stdout)
			return nil
		},
	}
	cmd.Flags().IntVarP(&unitIndex, "unit", "u", 0, "Code unit to disassemble")
	cmd.Flags().IntVarP(&objectIndex, "object", "c", 0, "Maker program to disassemble")
	cmd.MarkFlagsMutuallyExclusive("unit", "object")
	return cmd
}
