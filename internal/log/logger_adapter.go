package log

import "github.com/sirupsen/logrus"

// entryLogger implements Logger on a logrus entry. The With* methods fork
// the entry and leave the receiver unchanged.
type entryLogger struct {
	e *logrus.Entry
}

func fromLogrus(l *logrus.Logger) Logger {
	return &entryLogger{e: logrus.NewEntry(l)}
}

func (l *entryLogger) fork(e *logrus.Entry) Logger { return &entryLogger{e: e} }

func (l *entryLogger) Debug(args ...interface{}) { l.e.Log(logrus.DebugLevel, args...) }
func (l *entryLogger) Info(args ...interface{})  { l.e.Log(logrus.InfoLevel, args...) }
func (l *entryLogger) Warn(args ...interface{})  { l.e.Log(logrus.WarnLevel, args...) }
func (l *entryLogger) Error(args ...interface{}) { l.e.Log(logrus.ErrorLevel, args...) }

func (l *entryLogger) Debugf(format string, args ...interface{}) {
	l.e.Logf(logrus.DebugLevel, format, args...)
}

func (l *entryLogger) Infof(format string, args ...interface{}) {
	l.e.Logf(logrus.InfoLevel, format, args...)
}

func (l *entryLogger) Warnf(format string, args ...interface{}) {
	l.e.Logf(logrus.WarnLevel, format, args...)
}

func (l *entryLogger) Errorf(format string, args ...interface{}) {
	l.e.Logf(logrus.ErrorLevel, format, args...)
}

func (l *entryLogger) WithField(field string, value interface{}) Logger {
	return l.fork(l.e.WithField(field, value))
}

func (l *entryLogger) WithFields(fields map[string]interface{}) Logger {
	return l.fork(l.e.WithFields(logrus.Fields(fields)))
}

func (l *entryLogger) WithError(err error) Logger { return l.fork(l.e.WithError(err)) }

func (l *entryLogger) IsDebugEnabled() bool {
	return l.e.Logger.IsLevelEnabled(logrus.DebugLevel)
}
