package log

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	defaultPattern    = "%time [%level] %field %msg\n"
	defaultTimeFormat = "2006-01-02 15:04:05.000"
)

// verbs recognised in a pattern; any other % is literal.
var verbs = []string{"%caller", "%field", "%func", "%level", "%time", "%msg"}

// segment is either literal text or one verb.
type segment struct {
	text string
	verb string
}

// formatter renders entries from a pattern that is split into segments once.
// Each verb is expanded wherever it occurs.
type formatter struct {
	segments   []segment
	timeFormat string
}

func newFormatter(pattern, timeFormat string) *formatter {
	if pattern == "" {
		pattern = defaultPattern
	}
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}
	return &formatter{segments: parsePattern(pattern), timeFormat: timeFormat}
}

func parsePattern(pattern string) []segment {
	var segs []segment
	for pattern != "" {
		i := strings.IndexByte(pattern, '%')
		if i < 0 {
			segs = append(segs, segment{text: pattern})
			break
		}
		if i > 0 {
			segs = append(segs, segment{text: pattern[:i]})
			pattern = pattern[i:]
		}
		matched := false
		for _, v := range verbs {
			if strings.HasPrefix(pattern, v) {
				segs = append(segs, segment{verb: v})
				pattern = pattern[len(v):]
				matched = true
				break
			}
		}
		if !matched {
			segs = append(segs, segment{text: "%"})
			pattern = pattern[1:]
		}
	}
	return segs
}

// Format implements logrus.Formatter.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, s := range f.segments {
		switch s.verb {
		case "":
			buf.WriteString(s.text)
		case "%time":
			buf.WriteString(entry.Time.Format(f.timeFormat))
		case "%level":
			buf.WriteString(entry.Level.String())
		case "%field":
			writeFields(&buf, entry.Data)
		case "%msg":
			buf.WriteString(entry.Message)
		case "%caller":
			buf.WriteString(caller(entry))
		case "%func":
			buf.WriteString(function(entry))
		}
	}
	return buf.Bytes(), nil
}

// caller renders pkg/file.go:line.
func caller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	fn := entry.Caller.Function
	pkg := path.Base(fn)
	if i := strings.IndexByte(pkg, '.'); i >= 0 {
		pkg = pkg[:i]
	}
	return fmt.Sprintf("%s/%s:%d", pkg, path.Base(entry.Caller.File), entry.Caller.Line)
}

func function(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	fn := entry.Caller.Function
	return fn[strings.LastIndexByte(fn, '.')+1:]
}

// writeFields renders data as comma-separated key=value pairs in key order.
func writeFields(buf *bytes.Buffer, data logrus.Fields) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(buf, "%s=%v", k, data[k])
	}
}
