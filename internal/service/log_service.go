package service

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/makeasinger/controlpanel/internal/model"
	"github.com/makeasinger/controlpanel/pkg/ansihtml"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

const DefaultLogFileName = "server.log"

// Broadcaster sends prebuilt envelopes to every session. Log events use
// the allocated id as their history sequence.
type Broadcaster interface {
	NextID() int64
	Broadcast(env *protocol.Envelope) error
}

// LogService is the logger sink that keeps the log history and streams
// every line to connected clients as a log event. Nothing on its path may
// log, or each line would produce another.
type LogService struct {
	events   Broadcaster
	fileName string

	mu      sync.RWMutex
	history []model.LogEntry
}

func NewLogService(events Broadcaster, fileName string) *LogService {
	if fileName == "" {
		fileName = DefaultLogFileName
	}
	return &LogService{events: events, fileName: fileName}
}

// WriteLine implements logger.Sink. Sequence allocation, the history
// append and the broadcast happen under one lock, so the history and the
// stream of log events are both in sequence order.
func (s *LogService) WriteLine(_ zapcore.Level, line string) {
	text, html := ansihtml.Strip(line), ansihtml.Convert(line)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := model.LogEntry{Sequence: s.events.NextID(), Text: text, HTML: html}
	s.history = append(s.history, entry)

	env, err := protocol.NewEnvelope(protocol.ID(entry.Sequence), protocol.LogEvent{Text: entry.Text, HTML: entry.HTML})
	if err != nil {
		return
	}
	_ = s.events.Broadcast(env)
}

// History returns a copy of every entry so far, in sequence order.
func (s *LogService) History() []model.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LogEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Download returns the whole plain-text history as one blob.
func (s *LogService) Download() protocol.DownloadLogResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	for _, e := range s.history {
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return protocol.DownloadLogResponse{FileName: s.fileName, Content: b.String()}
}
