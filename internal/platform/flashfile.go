/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package platform

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/stratum1/gnssntpd/internal/configstore"
)

// FileFlash implements hw.FlashDevice by mapping the reserved sector
// onto a regular file, the development-host stand-in for the single
// reserved flash sector the config store owns. "Erase" writes 0xFF
// (flash's erased-state byte) across the region, matching how NOR
// flash actually reads after a real erase cycle.
type FileFlash struct {
	mu   sync.Mutex
	file *os.File

	brownout atomic.Bool
}

// OpenFileFlash opens (creating if necessary) a file of exactly
// configstore.DefaultSectorBytes and returns a FileFlash backed by it.
func OpenFileFlash(path string) (*FileFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("platform: opening flash file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: stat flash file: %w", err)
	}
	if info.Size() < configstore.DefaultSectorBytes {
		if err := f.Truncate(configstore.DefaultSectorBytes); err != nil {
			f.Close()
			return nil, fmt.Errorf("platform: sizing flash file: %w", err)
		}
	}
	return &FileFlash{file: f}, nil
}

// Close releases the underlying file handle.
func (f *FileFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// Erase implements hw.FlashDevice.
func (f *FileFlash) Erase(offset, length uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	blank := make([]byte, length)
	for i := range blank {
		blank[i] = 0xFF
	}
	_, err := f.file.WriteAt(blank, int64(offset))
	return err
}

// Write implements hw.FlashDevice.
func (f *FileFlash) Write(offset uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.file.WriteAt(data, int64(offset))
	return err
}

// Read implements hw.FlashDevice.
func (f *FileFlash) Read(offset uint32, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.file.ReadAt(buf, int64(offset))
	return err
}

// BrownoutFlagged implements hw.FlashDevice. SetBrownout lets cmd/ntpd
// wire this to a real supply-voltage monitor input when one exists; it
// defaults to false.
func (f *FileFlash) BrownoutFlagged() bool { return f.brownout.Load() }

// SetBrownout sets the brownout flag this device reports, for local
// testing of the power-loss-safety path without real hardware.
func (f *FileFlash) SetBrownout(flagged bool) { f.brownout.Store(flagged) }
