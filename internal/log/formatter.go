package log

import (
	"fmt"
	"path"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	defaultPattern    = "%time [%level] %msg %field"
	defaultTimeLayout = "2006-01-02 15:04:05.000"
)

var selfPackage = func() string {
	pc, _, _, _ := runtime.Caller(0)
	fn := runtime.FuncForPC(pc).Name()
	slash := strings.LastIndex(fn, "/")
	return fn[:slash+strings.Index(fn[slash+1:], ".")+1]
}()

type formatter struct {
	pattern string
	time    string
}

func newFormatter(pattern, timeLayout string) *formatter {
	if pattern == "" {
		pattern = defaultPattern
	}
	if timeLayout == "" {
		timeLayout = defaultTimeLayout
	}
	return &formatter{pattern: pattern, time: timeLayout}
}

// Format supports %time, %level, %field, %msg, %caller and %func.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	pairs := []string{
		"%time", entry.Time.Format(f.time),
		"%level", entry.Level.String(),
		"%field", buildFields(entry),
		"%msg", entry.Message,
	}
	if strings.Contains(f.pattern, "%caller") {
		pairs = append(pairs, "%caller", getCaller(entry))
	}
	if strings.Contains(f.pattern, "%func") {
		pairs = append(pairs, "%func", getFunc(entry))
	}
	r := strings.NewReplacer(pairs...)
	out := strings.TrimRight(r.Replace(f.pattern), " ")
	return []byte(out + "\n"), nil
}

// getCaller returns package/file.go:line of the code that logged.
func getCaller(entry *logrus.Entry) string {
	frame, ok := callerFrame(entry)
	if !ok {
		return "unknown"
	}
	pkg := ""
	if fn := frame.Function; fn != "" {
		fn = fn[strings.LastIndex(fn, "/")+1:]
		if i := strings.Index(fn, "."); i > 0 {
			pkg = fn[:i]
		}
	}
	return fmt.Sprintf("%s/%s:%d", pkg, path.Base(frame.File), frame.Line)
}

func getFunc(entry *logrus.Entry) string {
	frame, ok := callerFrame(entry)
	if !ok {
		return "unknown"
	}
	fn := frame.Function
	if i := strings.LastIndex(fn, "."); i != -1 && i+1 < len(fn) {
		return fn[i+1:]
	}
	return fn
}

// callerFrame finds the first stack frame outside logrus and this package.
func callerFrame(entry *logrus.Entry) (runtime.Frame, bool) {
	if entry.HasCaller() && !isLoggingFrame(entry.Caller.Function) {
		return *entry.Caller, true
	}
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !isLoggingFrame(frame.Function) {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func isLoggingFrame(fn string) bool {
	return strings.HasPrefix(fn, "github.com/sirupsen/logrus.") ||
		strings.HasPrefix(fn, selfPackage+".")
}

// buildFields renders fields as key=value pairs sorted by key.
func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		var s string
		switch v := entry.Data[k].(type) {
		case string:
			s = v
		case error:
			s = v.Error()
		default:
			s = fmt.Sprint(v)
		}
		fields = append(fields, k+"="+s)
	}
	return strings.Join(fields, ",")
}
