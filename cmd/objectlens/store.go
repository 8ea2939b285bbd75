// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/objectlens/cmd/objectlens/config"
	"github.com/AleutianAI/objectlens/services/lens/recording"
)

var errRecordingDisabled = errors.New("recording is disabled (recording.backend: none)")

// openStore opens the configured recording backend.
func openStore(ctx context.Context, rc config.RecordingConfig) (recording.Store, error) {
	switch rc.Backend {
	case config.BackendBadger:
		store, err := recording.OpenBadgerStore(rc.Badger())
		if err != nil {
			return nil, fmt.Errorf("opening recordings at %s: %w", rc.Path, err)
		}
		return store, nil
	case config.BackendRedis:
		store, err := recording.NewRedisStore(ctx, rc.RedisURL, rc.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return store, nil
	default:
		return nil, errRecordingDisabled
	}
}
