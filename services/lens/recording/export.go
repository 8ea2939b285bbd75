// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recording

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
)

// ValidateID checks that id is a UUID as issued by Recorder.Start.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Export writes every frame of recording id with the writer for format f,
// one diagram after another separated by a blank line.
//
// # Outputs
//
//   - error: ErrInvalidID, ErrRecordingNotFound, diagram.ErrUnknownFormat,
//     store and write failures.
func Export(ctx context.Context, store Store, id string, f diagram.Format, w io.Writer) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	writer, err := diagram.WriterFor(f)
	if err != nil {
		return err
	}
	frames, err := store.Frames(ctx, id)
	if err != nil {
		return err
	}
	for i, frame := range frames {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		d := frame.Diagram
		if d == nil {
			d = &diagram.Diagram{}
		}
		if err := writer.Write(w, d); err != nil {
			return fmt.Errorf("writing frame %d: %w", frame.Index, err)
		}
	}
	return nil
}
