// Package log adds logging utilities.
package log

import (
	"strings"
	"time"

	"syncpad/internal/pkg/protocol"

	"github.com/sirupsen/logrus"
)

// SetLogger sets the default logger's level.
func SetLogger(level string) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = time.RFC3339
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	switch strings.ToLower(level) {
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// MessageToFields flattens a protocol message for structured logging.
// Content is reported by length only; document text does not belong in
// the logs.
func MessageToFields(msg *protocol.Message) logrus.Fields {
	fields := logrus.Fields{
		"type": msg.Type,
	}
	if msg.Username != "" {
		fields["username"] = msg.Username
	}
	if msg.Filename != "" {
		fields["filename"] = msg.Filename
	}
	if msg.Content != "" {
		fields["content_len"] = len(msg.Content)
	}
	if len(msg.Editors) > 0 {
		fields["editors"] = msg.Editors
	}
	return fields
}
