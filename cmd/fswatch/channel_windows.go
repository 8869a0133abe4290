//go:build windows

package main

import (
	"fmt"

	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/channel/fltport"
	"github.com/mrzor/fswatch/internal/config"
	"github.com/mrzor/fswatch/internal/pathconv"
	"github.com/mrzor/fswatch/internal/timesync"
)

// openChannel returns the minifilter port, the drive-letter table of this
// machine and the FILETIME stamper the driver's timestamps need.
func openChannel(cfg *config.Config) (channel.Channel, pathconv.Translator, timesync.Stamper, error) {
	if cfg.Backend != config.BackendFltPort {
		return nil, nil, nil, fmt.Errorf("backend %q is not available on windows", cfg.Backend)
	}

	table, err := pathconv.Discover()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("discovering drive letters: %w", err)
	}
	return fltport.New(cfg.Port.Name), table, timesync.Filetime{}, nil
}
