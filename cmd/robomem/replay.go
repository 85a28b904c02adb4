package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/robomem"
	"github.com/soundprediction/robomem/pkg/config"
	"github.com/soundprediction/robomem/pkg/export"
	"github.com/soundprediction/robomem/pkg/nlp"
	"github.com/soundprediction/robomem/pkg/perception"
	"github.com/soundprediction/robomem/pkg/types"
)

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml>",
	Short: "Replay a recorded robot run into the memory",
	Long: `Replay feeds the ticks of a YAML scenario through perception decoding and
into the memory graph, then prints the entities it ended up believing in.

With --vision, ticks that name a camera frame are described live by the
configured vision model instead of using their recorded percept.

With --export the state after every tick and the final graph are written as
Parquet files for offline analysis.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().String("export", "", "Directory for Parquet output")
	replayCmd.Flags().Bool("describe", false, "Print the textual belief summary")
	replayCmd.Flags().Bool("vision", false, "Describe camera frames with the configured vision model")
	replayCmd.Flags().Duration("decay-at", 0, "Apply decay this long after the last tick before printing")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	scenario, err := perception.LoadScenarioFile(args[0])
	if err != nil {
		return err
	}
	if scenario.WorldType != "" {
		cfg.Memory.WorldType = scenario.WorldType
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	memory, _, err := newMemory(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer memory.Close(ctx)

	var writer *export.ParquetWriter
	onResult := func(*types.IngestResult) error { return nil }
	if dir, _ := cmd.Flags().GetString("export"); dir != "" {
		writer, err = export.NewParquetWriter(dir)
		if err != nil {
			return err
		}
		defer writer.Close()
		onResult = func(res *types.IngestResult) error {
			return writer.WriteStep(ctx, res)
		}
	}

	live, _ := cmd.Flags().GetBool("vision")
	bridge, err := scenario.Bridge(live)
	if err != nil {
		return err
	}
	pipeline := scenario.Pipeline()
	if live {
		vision, err := newVisionPipeline(cfg.Perception, log)
		if err != nil {
			return err
		}
		pipeline = perception.FallbackPipeline(vision, pipeline)
	}

	stats, err := perception.Run(ctx, bridge, pipeline, memory, log, onResult)
	if err != nil {
		return err
	}
	released, err := memory.Flush(ctx)
	if err != nil {
		return err
	}
	for _, res := range released {
		if err := onResult(res); err != nil {
			return err
		}
	}

	if d, _ := cmd.Flags().GetDuration("decay-at"); d > 0 {
		latest, err := memory.Latest(ctx)
		if err == nil {
			if _, err := memory.Decay(ctx, latest.Time.Add(d)); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replayed %q: %d ticks, %d ingested, %d skipped\n\n",
		scenario.Name, stats.Ticks, stats.Ingested+len(released), stats.Skipped)
	if err := printEntities(ctx, out, memory); err != nil {
		return err
	}

	if describe, _ := cmd.Flags().GetBool("describe"); describe {
		text, err := memory.Describe(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n", text)
	}

	if writer != nil {
		snap, err := memory.Snapshot(ctx)
		if err != nil {
			return err
		}
		name := scenario.Name
		if name == "" {
			name = "replay"
		}
		if err := writer.WriteSnapshot(ctx, snap, name); err != nil {
			return err
		}
	}
	return nil
}

func printEntities(ctx context.Context, w io.Writer, memory *robomem.Client) error {
	entities, err := memory.Entities(ctx, nil)
	if err != nil {
		return err
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Confidence != entities[j].Confidence {
			return entities[i].Confidence > entities[j].Confidence
		}
		return entities[i].ID < entities[j].ID
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tX\tY\tCONFIDENCE\tSEEN\tLAST SEEN\tDESCRIPTION")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.3f\t%d\t%s\t%s\n",
			e.ID, e.Type, e.GlobalPosition.X, e.GlobalPosition.Y, e.Confidence,
			e.ObservationCount, e.LastSeen.Format(time.RFC3339), e.Description)
	}
	return tw.Flush()
}

func newVisionPipeline(cfg config.PerceptionConfig, log *slog.Logger) (*perception.VisionPipeline, error) {
	if cfg.Provider != "openai" {
		return nil, fmt.Errorf("no vision provider configured (perception.provider is %q)", cfg.Provider)
	}
	client, err := nlp.NewOpenAIClient(cfg.APIKey, nlp.Config{
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Detail:  cfg.Detail,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Vision model ready", "model", client.Model(), "base_url", cfg.BaseURL)

	retry := nlp.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	pipeline := perception.NewVisionPipeline(nlp.NewRetryClient(client, retry), log)
	pipeline.Task = cfg.Task
	return pipeline, nil
}
