package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/spreadwatch/internal/waterfall"
	"github.com/sells-group/spreadwatch/internal/waterfall/provider"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the resolved source priority chain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		wcfg, reg, err := buildRegistry()
		if err != nil {
			return err
		}
		formatSources(os.Stdout, wcfg, reg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

// formatSources writes the enabled sources in query order.
func formatSources(out io.Writer, wcfg *waterfall.Config, reg *provider.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSOURCE\tTIER\tFIELDS\tTIMEOUT\tURL")
	for i, p := range reg.Ordered() {
		url := ""
		if hp, ok := p.(*provider.HTTPProvider); ok {
			url = hp.URL()
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			i+1, p.Name(), p.Tier(), fieldList(p.Fields()), wcfg.TimeoutFor(p.Name()), truncate(url, 70))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nPoliteness delay: %s\n", wcfg.PolitenessDelay())
}
