package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modelstudio/modelstudio-go/config"
)

// NewConfigCommand creates the config command listing every configuration key
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "List configuration keys",
		Long: `Lists every key accepted in the --config YAML file together with the
environment variable that sets it, its default and its constraints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defaults := config.Defaults()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tENV\tDEFAULT\tCONSTRAINTS\tDESCRIPTION")
			for _, key := range config.Describe() {
				def := "-"
				if v, ok := defaults[key.Key]; ok {
					def = fmt.Sprint(v)
				}

				constraints := key.ConstraintSummary()
				if key.Required {
					constraints = strings.TrimSpace("required " + constraints)
				}
				if constraints == "" {
					constraints = "-"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					key.Key, config.EnvVar(key.Key), def, constraints, key.Description)
			}
			return w.Flush()
		},
	}
}
