package platform

import (
	log "github.com/sirupsen/logrus"
)

// LogSink is a dry-run KeySink that only logs what would have been typed.
type LogSink struct {
	Logger *log.Logger
}

// NewLogSink creates a LogSink writing to the standard logger.
func NewLogSink() *LogSink {
	return &LogSink{Logger: log.StandardLogger()}
}

func (s *LogSink) KeyDown(r rune) error {
	s.Logger.Infof("key down: %q", r)
	return nil
}

func (s *LogSink) KeyUp(r rune) error {
	s.Logger.Infof("key up: %q", r)
	return nil
}

func (s *LogSink) Text(text string) error {
	s.Logger.Infof("text: %q", text)
	return nil
}

var _ KeySink = (*LogSink)(nil)
