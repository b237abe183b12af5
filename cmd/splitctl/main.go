// Command splitctl is an operator CLI for the split-engine job runtime.
// It talks to the broker directly, bypassing the HTTP surface this
// module does not implement.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/printsplit/splitengine/internal/broker"
	"github.com/printsplit/splitengine/internal/broker/membroker"
	"github.com/printsplit/splitengine/internal/broker/redisbroker"
	"github.com/printsplit/splitengine/internal/config"
	"github.com/printsplit/splitengine/internal/holeplacer"
	"github.com/printsplit/splitengine/internal/jobs"
	"github.com/printsplit/splitengine/internal/splitengine"
)

func main() {
	root := &cobra.Command{
		Use:   "splitctl",
		Short: "Operator CLI for the split queue",
	}
	root.AddCommand(submitCmd(), getCmd(), positionCmd(), cancelCmd(), forceFailCmd(), purgeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newQueue() (*jobs.Queue, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var br broker.Broker
	if cfg.RedisURL == "" {
		br = membroker.New()
	} else {
		br, err = redisbroker.Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			return nil, err
		}
	}
	return jobs.NewQueue(broker.SplitQueue, br, jobs.DefaultRetention(), nil), nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func submitCmd() *cobra.Command {
	var fileID, fileName string
	var x, y, z float64
	var balanced, holes bool
	var holeDiameter, holeDepth float64

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a split job against an already-uploaded STL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := newQueue()
			if err != nil {
				return err
			}
			id, err := q.Submit(context.Background(), jobs.SubmitRequest{
				FileID:          fileID,
				FileName:        fileName,
				Dimensions:      splitengine.Dimensions{X: x, Y: y, Z: z},
				BalancedCutting: balanced,
				AlignmentHoles: holeplacer.Spec{
					Enabled:    holes,
					DiameterMM: holeDiameter,
					DepthMM:    holeDepth,
					Spacing:    holeplacer.Normal,
				},
			})
			if err != nil {
				return err
			}
			printJSON(map[string]string{"job_id": id})
			return nil
		},
	}
	cmd.Flags().StringVar(&fileID, "file-id", "", "object-store key of the uploaded STL")
	cmd.Flags().StringVar(&fileName, "file-name", "", "original file name")
	cmd.Flags().Float64Var(&x, "x", 0, "max piece size along X (mm)")
	cmd.Flags().Float64Var(&y, "y", 0, "max piece size along Y (mm)")
	cmd.Flags().Float64Var(&z, "z", 0, "max piece size along Z (mm)")
	cmd.Flags().BoolVar(&balanced, "balanced-cutting", false, "prefer balanced piece sizes over a greedy max-first cut")
	cmd.Flags().BoolVar(&holes, "alignment-holes", false, "carve alignment holes across cut faces")
	cmd.Flags().Float64Var(&holeDiameter, "hole-diameter", 3, "alignment hole diameter in mm, [1,5]")
	cmd.Flags().Float64Var(&holeDepth, "hole-depth", 4, "alignment hole depth in mm, [1,10]")
	cmd.MarkFlagRequired("file-id")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Print a job's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := newQueue()
			if err != nil {
				return err
			}
			job, err := q.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			printJSON(job)
			return nil
		},
	}
}

func positionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <job-id>",
		Short: "Print a waiting job's queue position and ETA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := newQueue()
			if err != nil {
				return err
			}
			pos, err := q.Position(context.Background(), args[0])
			if err != nil {
				return err
			}
			printJSON(pos)
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a waiting or active job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := newQueue()
			if err != nil {
				return err
			}
			return q.Cancel(context.Background(), args[0])
		},
	}
}

func forceFailCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "force-fail <job-id>",
		Short: "Immediately fail an active job without waiting for a cancellation checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := newQueue()
			if err != nil {
				return err
			}
			return q.ForceFail(context.Background(), args[0], reason)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "force-failed by operator", "reason recorded on the job")
	return cmd
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Purge completed/failed jobs past their retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := newQueue()
			if err != nil {
				return err
			}
			removed := q.Purge(context.Background())
			printJSON(map[string]int{"removed": removed})
			return nil
		},
	}
}
