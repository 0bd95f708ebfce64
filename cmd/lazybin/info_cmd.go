package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudcmds/lazybin/internal/table"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Summarize a container's header and code units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadContainer(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("version:    %d\n", f.Version())
			fmt.Printf("size:       %d bytes\n", f.Size())
			fmt.Printf("code units: %d\n", f.CodeUnitCount())
			fmt.Printf("files:      %d\n", f.Metadata().FileCount())
			if n, err := f.ObjectCount(); err == nil {
				fmt.Printf("objects:    %d\n", n)
			}
			if n, err := f.StringCount(); err == nil {
				fmt.Printf("strings:    %d\n", n)
			}
			fmt.Println()

			var rows [][]string
			for i := 0; i < f.CodeUnitCount(); i++ {
				rec, err := f.Record(i)
				if err != nil {
					return err
				}
				name, err := rec.Name()
				if err != nil {
					return err
				}
				filename, err := rec.Filename()
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", i),
					name,
					filename,
					fmt.Sprintf("%d", rec.Instructions().Len()),
					fmt.Sprintf("%d", rec.NameSlotCount()),
					fmt.Sprintf("%d", rec.ConstSlotCount()),
				})
			}
			table.NewTable(os.Stdout).
				WithHeader([]string{"UNIT", "NAME", "FILE", "WORDS", "NAMES", "CONSTS"}).
				WithColumnAlignment([]table.Alignment{
					table.AlignRight,
					table.AlignLeft,
					table.AlignLeft,
					table.AlignRight,
					table.AlignRight,
					table.AlignRight,
				}).
				WithHeaderAlignment([]table.Alignment{
					table.AlignCenter,
					table.AlignCenter,
					table.AlignCenter,
					table.AlignCenter,
					table.AlignCenter,
					table.AlignCenter,
				}).
				WithRows(rows).
				Render()
			return nil
		},
	}
}
