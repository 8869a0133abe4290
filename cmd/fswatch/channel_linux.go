//go:build linux

package main

import (
	"fmt"
	"log/slog"

	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/channel/bpfport"
	"github.com/mrzor/fswatch/internal/config"
	"github.com/mrzor/fswatch/internal/pathconv"
	"github.com/mrzor/fswatch/internal/timesync"
)

// openChannel returns the pinned-map port. The producer reports plain paths
// and boot-relative timestamps.
func openChannel(cfg *config.Config) (channel.Channel, pathconv.Translator, timesync.Stamper, error) {
	if cfg.Backend != config.BackendBPF {
		return nil, nil, nil, fmt.Errorf("backend %q is not available on linux", cfg.Backend)
	}

	converter, err := timesync.NewConverter()
	if err != nil {
		slog.Warn("boot time unavailable, span times are estimated", "error", err)
	}
	return bpfport.New(cfg.Port.PinPath, cfg.Port.ReadTimeout), pathconv.Identity, converter, nil
}
