package log

import (
	"errors"
	"io"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/pcapscan/internal/config"
)

// outputs returns the destination for log entries: console, plus a rotating
// file when enabled. The returned closer is nil without a file.
func outputs(cfg config.LogOutputsConfig, console io.Writer) (io.Writer, io.Closer, error) {
	if !cfg.File.Enabled {
		return console, nil, nil
	}
	if cfg.File.Path == "" {
		return nil, nil, errors.New("file output requires 'path' field")
	}
	file := rotatingFile(cfg.File)
	return &tee{console: console, file: file}, file, nil
}

func rotatingFile(fc config.FileOutputConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxAge:     fc.Rotation.MaxAgeDays,
		MaxBackups: fc.Rotation.MaxBackups,
		Compress:   fc.Rotation.Compress,
		LocalTime:  true,
	}
}

// tee copies every entry to the file even when the console write fails.
type tee struct {
	console io.Writer
	file    io.Writer
}

func (t *tee) Write(p []byte) (int, error) {
	_, cerr := t.console.Write(p)
	_, ferr := t.file.Write(p)
	if err := errors.Join(cerr, ferr); err != nil {
		return 0, err
	}
	return len(p), nil
}
