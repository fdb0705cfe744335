// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/poiesic/docstream/core"
)

// WatchSource emits upload events for files created in a local directory.
// It is the local-development stand-in for object-store notifications: the
// file path becomes the object key and the file's mtime becomes the content
// version, so re-dropping an unchanged file stays idempotent.
type WatchSource struct {
	dir    string
	logger *slog.Logger
}

var _ Source = (*WatchSource)(nil)

// NewWatchSource creates a source watching the given directory.
func NewWatchSource(dir string, logger *slog.Logger) (*WatchSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchSource{dir: dir, logger: logger}, nil
}

// Events starts the watcher and returns its event channel. The watcher
// shuts down and the channel closes when the context is done.
func (s *WatchSource) Events(ctx context.Context) (<-chan core.UploadEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", s.dir, err)
	}

	events := make(chan core.UploadEvent)

	go func() {
		defer close(events)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case fsEvent, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !fsEvent.Has(fsnotify.Create) && !fsEvent.Has(fsnotify.Write) {
					continue
				}
				upload, ok := s.toUploadEvent(fsEvent.Name)
				if !ok {
					continue
				}
				select {
				case events <- upload:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("watcher error", "dir", s.dir, "err", err)
			}
		}
	}()

	return events, nil
}

func (s *WatchSource) toUploadEvent(path string) (core.UploadEvent, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return core.UploadEvent{}, false
	}
	return core.UploadEvent{
		Key:     path,
		Type:    core.EventTypeCreated,
		Version: fmt.Sprintf("%d", info.ModTime().UnixNano()),
	}, true
}
