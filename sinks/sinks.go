// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package sinks implements the telemetry line destinations the RF task
// writes $POGNT/$PFLAA/$POGNR sentences to: a console sink, an optional
// SD-log sink, and an optional MQTT sink, all behind one narrow interface
// so the RF task never special-cases any of them.
package sinks

import (
	"fmt"
	"io"
	"sync"
)

// LogPrintf is the logging closure sinks use to report their own failures,
// matching the teacher's convention in sx1231/sx1276.
type LogPrintf func(format string, v ...interface{})

// Sink accepts one formatted telemetry line (already CRLF-terminated) at a
// time. Implementations must be safe for concurrent use, since the RF task
// writes to every configured sink each time it composes a line and a slow
// sink must never corrupt another's output.
type Sink interface {
	Write(line string)
}

// Console is a Sink wrapping an io.Writer (typically os.Stdout).
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Sink writing every line to w.
func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Write(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, line)
}

// Log is a Sink wrapping an io.Writer typically backed by a file on
// removable storage; a write failure is reported via log rather than
// surfaced as an error, since telemetry is best-effort (SPEC_FULL.md §7).
type Log struct {
	mu  sync.Mutex
	w   io.Writer
	log LogPrintf
}

// NewLog returns a Sink writing every line to w, logging write failures
// via log (nil disables logging).
func NewLog(w io.Writer, log LogPrintf) *Log {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	return &Log{w: w, log: log}
}

func (l *Log) Write(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprint(l.w, line); err != nil {
		l.log("sinks: log write failed: %s", err)
	}
}

var _ Sink = (*Console)(nil)
var _ Sink = (*Log)(nil)
