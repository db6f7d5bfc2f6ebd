// Command mediacore-probe opens a media URI, prints its StreamInfo, and
// decodes a handful of frames — a thin manual-test harness for the
// pipeline, grounded on farcloser-haustorium's cmd/haustorium/main.go
// urfave/cli/v3 app shape.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx := context.Background()

	appl := &cli.Command{
		Name:  "mediacore-probe",
		Usage: "Probe and decode an audio file or URL through the mediacore pipeline",
		Commands: []*cli.Command{
			probeCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		slog.Error("mediacore-probe failed", "error", err)
		os.Exit(1)
	}
}
