package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Sink receives every emitted log line in its colored console form, after
// the line has been written to the regular outputs.
type Sink interface {
	WriteLine(level zapcore.Level, line string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(level zapcore.Level, line string)

func (f SinkFunc) WriteLine(level zapcore.Level, line string) { f(level, line) }

var sinks = struct {
	sync.RWMutex
	next int
	list map[int]Sink
}{list: make(map[int]Sink)}

// Attach registers a sink and returns the function that detaches it.
func Attach(s Sink) (detach func()) {
	sinks.Lock()
	id := sinks.next
	sinks.next++
	sinks.list[id] = s
	sinks.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sinks.Lock()
			delete(sinks.list, id)
			sinks.Unlock()
		})
	}
}

func attached() []Sink {
	sinks.RLock()
	defer sinks.RUnlock()
	if len(sinks.list) == 0 {
		return nil
	}
	out := make([]Sink, 0, len(sinks.list))
	for _, s := range sinks.list {
		out = append(out, s)
	}
	return out
}

type hookCore struct {
	zapcore.LevelEnabler
	enc zapcore.Encoder
}

func newHookCore(enc zapcore.Encoder, level zapcore.LevelEnabler) zapcore.Core {
	return &hookCore{LevelEnabler: level, enc: enc}
}

func (c *hookCore) With(fields []zapcore.Field) zapcore.Core {
	clone := c.enc.Clone()
	for i := range fields {
		fields[i].AddTo(clone)
	}
	return &hookCore{LevelEnabler: c.LevelEnabler, enc: clone}
}

func (c *hookCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *hookCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	targets := attached()
	if len(targets) == 0 {
		return nil
	}
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	line := strings.TrimRight(buf.String(), "\n")
	buf.Free()

	for _, s := range targets {
		s.WriteLine(ent.Level, line)
	}
	return nil
}

func (c *hookCore) Sync() error { return nil }
