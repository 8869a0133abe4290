//go:build !windows && !linux

package main

import (
	"fmt"
	"runtime"

	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/config"
	"github.com/mrzor/fswatch/internal/pathconv"
	"github.com/mrzor/fswatch/internal/timesync"
)

func openChannel(cfg *config.Config) (channel.Channel, pathconv.Translator, timesync.Stamper, error) {
	return nil, nil, nil, fmt.Errorf("backend %q is not available on %s", cfg.Backend, runtime.GOOS)
}
