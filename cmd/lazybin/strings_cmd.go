package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudcmds/lazybin/internal/table"
)

func newStringsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "strings <file>",
		Short: "List the container's string table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadContainer(args[0])
			if err != nil {
				return err
			}
			n, err := f.StringCount()
			if err != nil {
				return err
			}

			var rows [][]string
			for i := 0; i < n; i++ {
				s, err := f.StringAt(i)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", i),
					fmt.Sprintf("%q", s),
				})
			}
			table.NewTable(os.Stdout).
				WithHeader([]string{"INDEX", "VALUE"}).
				WithColumnAlignment([]table.Alignment{
					table.AlignRight,
					table.AlignLeft,
				}).
				WithHeaderAlignment([]table.Alignment{
					table.AlignCenter,
					table.AlignCenter,
				}).
				WithRows(rows).
				Render()
			return nil
		},
	}
}
