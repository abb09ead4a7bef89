package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gitrdm/gofove/internal/netfile"
	"github.com/gitrdm/gofove/pkg/fove"
)

// newShatterCmd returns a command that prints the shattered model.
func newShatterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shatter <model.yaml>",
		Short: "Print the model after shattering",
		Long: `The fove shatter command splits the parfactors of a network until any two
        of their Prvs denote identical or disjoint sets of ground random
        variables, and prints the result one parfactor per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			net, err := netfile.Load(args[0])
			if err != nil {
				return err
			}
			shattered, err := fove.Shatter(net.Parfactors, fove.NewRenamingContext())
			if err != nil {
				return err
			}
			log.Debugf("%d parfactors shattered into %d", len(net.Parfactors), len(shattered))
			for _, g := range shattered {
				fmt.Fprintln(cmd.OutOrStdout(), g)
			}
			return nil
		},
	}
}
