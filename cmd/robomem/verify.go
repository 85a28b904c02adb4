package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/robomem"
	"github.com/soundprediction/robomem/pkg/driver"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the persisted memory graph for invariant violations",
	Long: `Verify loads the memory graph from the configured store and checks the
trajectory chain, entity records and spatial edges. It exits non-zero when
any violation is found.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	rec, err := driver.Load(ctx, store)
	if err != nil {
		return err
	}
	snap := rec.Snapshot

	mc := robomem.ConfigFrom(cfg.Memory)
	violations := robomem.VerifySnapshot(snap, mc.Mode, mc.MatchRadius)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d robot nodes, %d world nodes, %d spatial edges\n",
		len(snap.RobotNodes), len(snap.WorldNodes), len(snap.SpatialEdges))
	for _, v := range violations {
		fmt.Fprintln(out, v.String())
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d invariant violations", len(violations))
	}
	fmt.Fprintln(out, "OK")
	return nil
}
