// Package diag carries component F of the bridge: leveled diagnostics
// routed to the side channel, and the structured error taxonomy.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package diag

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Level is a plain ordered verbosity, not a bitmask: 0 silent, 1 host
// default, 2 goal-oriented progress, 3 per-item traces.
type Level int32

const (
	LevelSilent Level = iota
	LevelDefault
	LevelInfo
	LevelDebug
)

// level is process-wide and set-only-upward, the same contract the
// teacher's control.logmask carries across a run. It starts at
// LevelDefault, not the zero value LevelSilent: "host default" is the
// baseline before any DOKUWIKI_VERBOSITY floor or `option verbosity`
// ceiling is applied, and Raise can never bring it back down to silent.
var level = int32(LevelDefault)

// logger writes exclusively to stderr. Stdout is reserved for protocol
// bytes end to end; nothing in this package ever touches it.
var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetOutput is exposed for tests that want to capture the side channel.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Raise sets the verbosity floor/ceiling to at least lvl. It never lowers
// the level: an environment-provided floor and a host-option-provided
// ceiling are both expressed as calls to Raise, and the higher one wins
// regardless of call order.
func Raise(lvl Level) {
	for {
		cur := atomic.LoadInt32(&level)
		if int32(lvl) <= cur {
			return
		}
		if atomic.CompareAndSwapInt32(&level, cur, int32(lvl)) {
			break
		}
	}
	switch Level(atomic.LoadInt32(&level)) {
	case LevelSilent:
		logger.SetLevel(logrus.PanicLevel) // effectively disabled; see Enabled
	case LevelDefault:
		logger.SetLevel(logrus.WarnLevel)
	case LevelInfo:
		logger.SetLevel(logrus.InfoLevel)
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	}
}

// Current returns the active verbosity level.
func Current() Level {
	return Level(atomic.LoadInt32(&level))
}

// Enabled reports whether a message at lvl would actually be emitted.
func Enabled(lvl Level) bool {
	return Current() >= lvl && Current() != LevelSilent
}

// Info logs goal-oriented progress (level 2), e.g. "fetched 40 of 118
// pages".
func Info(format string, args ...interface{}) {
	if Enabled(LevelInfo) {
		logger.Infof(format, args...)
	}
}

// Debug logs a per-item trace (level 3).
func Debug(format string, args ...interface{}) {
	if Enabled(LevelDebug) {
		logger.Debugf(format, args...)
	}
}

// Warn logs a non-fatal problem; this is the host default level. The
// level starts at LevelDefault and Raise never lowers it, so warnings are
// always shown.
func Warn(format string, args ...interface{}) {
	if Current() == LevelSilent {
		return
	}
	logger.Warnf(format, args...)
}

// Fatalf logs and exits 1. Used only from cmd/git-remote-dokuwiki, never
// from library packages, so that library errors can always be tested
// without an os.Exit in the call path.
func Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "git-remote-dokuwiki: "+format+"\n", args...)
	os.Exit(1)
}
