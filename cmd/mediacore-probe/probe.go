package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/mediacore/codec"
	"github.com/farcloser/mediacore/demux"
	"github.com/farcloser/mediacore/pool"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Open a URI, print its StreamInfo, and decode N frames of PCM",
		ArgsUsage: "<uri>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "frames",
				Usage: "Number of 4096-sample PCM reads to perform",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "stats-db",
				Usage: "Path to a bbolt database recording buffer-pool pressure history",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			uri := cmd.Args().First()
			if uri == "" {
				return cli.Exit("expected a single <uri> argument", 1)
			}

			if dbPath := cmd.String("stats-db"); dbPath != "" {
				apply, closeDB, err := pool.WithStatsDB(dbPath)
				if err != nil {
					return fmt.Errorf("mediacore-probe: opening stats db: %w", err)
				}
				defer closeDB()
				demux.ApplyPoolOption(apply)
			}

			ds, err := codec.Open(ctx, uri)
			if err != nil {
				return fmt.Errorf("mediacore-probe: open: %w", err)
			}
			defer ds.Close()

			info := ds.StreamInfo()
			fmt.Printf("codec=%s sample_rate=%d channels=%d bits_per_sample=%d duration_ms=%d\n",
				info.CodecName, info.SampleRate, info.Channels, info.BitsPerSample, info.DurationMs)

			buf := make([]int16, 4096)
			frames := cmd.Int("frames")
			for i := 0; i < int(frames); i++ {
				n, err := ds.ReadPCM(buf)
				if err != nil {
					return fmt.Errorf("mediacore-probe: read_pcm: %w", err)
				}
				if n == 0 {
					fmt.Println("eof")
					break
				}
				fmt.Printf("frame %d: %d samples, position_ms=%d\n", i, n, ds.PositionMs())
			}

			return nil
		},
	}
}
