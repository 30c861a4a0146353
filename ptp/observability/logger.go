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

package observability

import log "github.com/sirupsen/logrus"

// Level mirrors the handful of severities the core ever logs at.
type Level uint8

// Levels the core log hook ever uses.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the best-effort, non-blocking log call-out the core uses
// instead of formatting strings or doing I/O itself (spec section 4.8).
// Implementations must not block or call back into the core.
type Logger interface {
	Log(level Level, tag string, code string, msg string)
}

// NopLogger discards every call. It is the explicit no-op implementation an
// embedder chooses when it wants to skip logging, per the "no null
// callbacks" design note - absence is expressed by a specific type, not by
// a nil interface the core would have to guard against.
type NopLogger struct{}

// Log implements Logger.
func (NopLogger) Log(Level, string, string, string) {}

// LogrusSink adapts Logger to github.com/sirupsen/logrus.
type LogrusSink struct {
	Entry *log.Entry
}

// NewLogrusSink wraps a *log.Logger (or the package-level logger if nil)
// behind the Logger interface.
func NewLogrusSink(logger *log.Logger) *LogrusSink {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogrusSink{Entry: log.NewEntry(logger)}
}

// Log implements Logger.
func (s *LogrusSink) Log(level Level, tag string, code string, msg string) {
	entry := s.Entry.WithFields(log.Fields{"tag": tag, "code": code})
	switch level {
	case LevelDebug:
		entry.Debug(msg)
	case LevelInfo:
		entry.Info(msg)
	case LevelWarn:
		entry.Warn(msg)
	case LevelError:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
}
