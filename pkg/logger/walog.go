package logger

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// whatsmeowLogger routes whatsmeow's printf-style logging into this package
// so library and bridge lines share one format and one file.
type whatsmeowLogger struct {
	module string
}

// WhatsmeowLogger returns a waLog.Logger tagged with module as component.
func WhatsmeowLogger(module string) waLog.Logger {
	return &whatsmeowLogger{module: module}
}

func (l *whatsmeowLogger) Debugf(msg string, args ...interface{}) {
	logMessage(DEBUG, l.module, fmt.Sprintf(msg, args...), nil)
}

func (l *whatsmeowLogger) Infof(msg string, args ...interface{}) {
	logMessage(INFO, l.module, fmt.Sprintf(msg, args...), nil)
}

func (l *whatsmeowLogger) Warnf(msg string, args ...interface{}) {
	logMessage(WARN, l.module, fmt.Sprintf(msg, args...), nil)
}

func (l *whatsmeowLogger) Errorf(msg string, args ...interface{}) {
	logMessage(ERROR, l.module, fmt.Sprintf(msg, args...), nil)
}

func (l *whatsmeowLogger) Sub(module string) waLog.Logger {
	return &whatsmeowLogger{module: l.module + "/" + module}
}
