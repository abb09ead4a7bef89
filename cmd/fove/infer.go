package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gitrdm/gofove/internal/netfile"
	"github.com/gitrdm/gofove/pkg/fove"
)

type inferOptions struct {
	maxSteps int
	trace    bool
	stats    bool
	metrics  bool
}

// newInferCmd returns a command that answers the query of a network file.
func newInferCmd() *cobra.Command {
	opts := &inferOptions{}
	inferCmd := &cobra.Command{
		Use:   "infer <model.yaml>",
		Short: "Compute the normalized marginal of the query",
		Long: `The fove infer command shatters the network against its query, eliminates
        every other random variable and prints the normalized distribution of
        one ground instance of the query.

        $ fove infer --stats examples/sprinkler/sprinkler.yaml
        `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(cmd, args[0], opts)
		},
	}

	inferCmd.Flags().IntVar(&opts.maxSteps, "max-steps", fove.DefaultConfig().MaxSteps, "Abort after this many macro-operations (0 = unlimited).")
	inferCmd.Flags().BoolVar(&opts.trace, "trace", false, "Print every macro-operation as it is applied.")
	inferCmd.Flags().BoolVar(&opts.stats, "stats", false, "Print run statistics.")
	inferCmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Print the run's operation counters.")
	return inferCmd
}

func runInfer(cmd *cobra.Command, path string, opts *inferOptions) error {
	out := cmd.OutOrStdout()
	net, err := netfile.Load(path)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	cfg := &fove.Config{
		MaxSteps:   opts.maxSteps,
		Logger:     log.StandardLogger(),
		Registerer: reg,
	}
	if opts.trace {
		cfg.Observer = func(step int, operation string, m *fove.Marginal) {
			fmt.Fprintf(out, "%3d  %s  (%d parfactors)\n", step, operation, len(m.Distribution()))
		}
	}

	engine, err := fove.NewACFOVE(net.Parfactors, net.Query, cfg)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"model": path, "run": engine.RunID()}).Debug("starting inference")
	result, err := engine.Run(context.Background())
	if err != nil {
		return err
	}

	values := result.Factor().Normalize().Values()
	fmt.Fprintf(out, "P(%s) with %s:\n", result.Prvs()[0], result.Constraints())
	for i, e := range result.Prvs()[0].Range() {
		fmt.Fprintf(out, "  %-5s %.6f\n", e, values[i])
	}

	if opts.stats {
		fmt.Fprintln(out, engine.Stats())
	}
	if opts.metrics {
		return printCounters(cmd, reg)
	}
	return nil
}

// printCounters writes every counter sample gathered from reg, one per line.
func printCounters(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
	return nil
}
