package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/environment"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/app"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/tagparse"
)

func newCatalogCmd() *cobra.Command {
	var (
		file   string
		prompt bool
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the action catalogue",
		Long: `Loads the action catalogue (the built-in one unless --file or LIVEBOT_CATALOG
names a YAML override) and lists its actions. With --prompt the catalogue is
rendered the way the model sees it in the system prompt.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = environment.StringOr("LIVEBOT_CATALOG", "")
			}
			cat, err := app.LoadCatalog(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if prompt {
				fmt.Fprintln(out, cat.PromptSection(environment.StringOr("LIVEBOT_TAG_KEYWORD", tagparse.DefaultKeyword)))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACTION\tMUTATING\tCONFIRM\tBATCH")
			for _, name := range cat.Names() {
				a, _ := cat.Get(name)
				batch := "-"
				if a.Batch != "" {
					batch = a.Batch
				}
				fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", a.Name, a.Mutating, a.Confirm, batch)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML catalogue to load instead of the built-in one")
	cmd.Flags().BoolVar(&prompt, "prompt", false, "print the system prompt section instead of the table")
	return cmd
}
