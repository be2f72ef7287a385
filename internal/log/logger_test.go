package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapscan/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "trace", "fatal"} {
		t.Run(input, func(t *testing.T) {
			_, err := parseLevel(input)
			assert.Error(t, err)
		})
	}
}

func TestNewTextPattern(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Format: "text", Pattern: "[%level] %field %msg\n"}, &buf)
	require.NoError(t, err)

	l.WithFields(map[string]interface{}{"session": "abc", "batch": 2}).Info("batch emitted")
	l.Debug("hidden")

	assert.Equal(t, "[info] batch=2,session=abc batch emitted\n", buf.String())
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.True(t, l.IsDebugEnabled())

	l.WithError(errors.New("boom")).Warn("scan stopped")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "scan stopped", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNewInvalid(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New(config.LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pcapscan.log")
	cfg := config.LogConfig{
		Level:  "info",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled:  true,
				Path:     logPath,
				Rotation: config.RotationConfig{MaxSizeMB: 1},
			},
		},
	}
	require.NoError(t, Init(cfg))
	t.Cleanup(func() { Close() })

	GetLogger().Info("written to file")
	require.NoError(t, Close())
	assert.False(t, GetLogger().IsDebugEnabled())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestInitFileWithoutPath(t *testing.T) {
	cfg := config.LogConfig{Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{Enabled: true}}}
	assert.Error(t, Init(cfg))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestTeeWritesFileWhenConsoleFails(t *testing.T) {
	var file bytes.Buffer
	w := &tee{console: failingWriter{}, file: &file}

	_, err := w.Write([]byte("entry\n"))
	assert.EqualError(t, err, "closed")
	assert.Equal(t, "entry\n", file.String())
}

func TestOutputsConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	out, closer, err := outputs(config.LogOutputsConfig{}, &console)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Same(t, &console, out)
}

func TestCloseWithoutFile(t *testing.T) {
	assert.NoError(t, Close())
}

func TestFormatterTime(t *testing.T) {
	f := newFormatter("%time|%caller|%func", "15:04")
	out, err := f.Format(&logrus.Entry{Time: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "09:30|unknown|unknown", string(out))
}

func TestFormatterLiteralPercent(t *testing.T) {
	f := newFormatter("100%% %level %msg/%msg", "")
	out, err := f.Format(&logrus.Entry{Level: logrus.WarnLevel, Message: "m", Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "100%% warning m/m", string(out))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.IsDebugEnabled())
	l.WithField("k", "v").Error("dropped")
}
