// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command objectlens serves a live object graph of a paused debug session
// to browser or editor panels.
package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/AleutianAI/objectlens/pkg/ux"
)

func main() {
	// A .env next to the working directory may carry OBJECTLENS_* overrides.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		ux.NewPrinter().Warning("ignoring .env: " + err.Error())
	}

	if err := newRootCmd().Execute(); err != nil {
		ux.NewPrinter().Error(err.Error())
		os.Exit(1)
	}
}
