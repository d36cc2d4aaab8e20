package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ceyewan/aspect/config"
	"github.com/ceyewan/aspect/intercept"
)

func newChainCommand(flags *globalFlags) *cobra.Command {
	var implementation string

	cmd := &cobra.Command{
		Use:   "chain <Type.Method>",
		Short: "Print the ordered interceptor chain compiled for a method",
		Example: `  aspect chain orders.Service.Get
  aspect chain orders.Service.Get --implementation orders.cachedService.Get`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := flags.loader(cmd)
			if err != nil {
				return err
			}
			catalog, err := config.Decode(l, flags.key, Factories()...)
			if err != nil {
				return err
			}

			method := intercept.ParseMethod(args[0])
			var impl intercept.Method
			if implementation != "" {
				impl = intercept.ParseMethod(implementation)
			}

			declared := catalog.Declared(method, impl)
			if len(declared) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no policies\n", method)
				return nil
			}

			p := intercept.NewPipeline(catalog, placeholders())
			chain := p.Chain(method, impl)
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.SetTitle(method.String())
			t.AppendHeader(table.Row{"#", "Kind", "Order"})
			for i, ic := range chain {
				t.AppendRow(table.Row{i + 1, ic.Kind(), orderOf(declared, ic.Kind())})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&implementation, "implementation", "", "implementation method (Type.Method)")
	return cmd
}

// orderOf 返回该 kind 第一条声明的 Order
func orderOf(declared []intercept.Declaration, kind intercept.Kind) int {
	for _, d := range declared {
		if d.Kind() == kind {
			return d.Common().Order
		}
	}
	return 0
}
