package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format renders entries with a pattern supporting %time, %level, %field, %msg, %caller and %func.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", entry.Level.String(), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	output = strings.Replace(output, "%caller", getCaller(entry), 1)
	output = strings.Replace(output, "%func", getFunc(entry), 1)
	return []byte(output), nil
}

// needsCaller reports whether the pattern references caller information.
func (f *formatter) needsCaller() bool {
	return strings.Contains(f.pattern, "%caller") || strings.Contains(f.pattern, "%func")
}

// getCaller returns package/file:line of the log call site.
func getCaller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	file := entry.Caller.File
	if slashIdx := strings.LastIndex(file, "/"); slashIdx != -1 && slashIdx+1 < len(file) {
		file = file[slashIdx+1:]
	}
	// Module paths may contain dots, so cut at the last slash first.
	pkg := entry.Caller.Function
	if slashIdx := strings.LastIndex(pkg, "/"); slashIdx != -1 {
		pkg = pkg[slashIdx+1:]
	}
	if dotIdx := strings.Index(pkg, "."); dotIdx != -1 {
		pkg = pkg[:dotIdx]
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, entry.Caller.Line)
}

// getFunc returns the bare function or method name of the call site.
func getFunc(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	funcName := entry.Caller.Function
	if dotIdx := strings.LastIndex(funcName, "."); dotIdx != -1 && dotIdx+1 < len(funcName) {
		return funcName[dotIdx+1:]
	}
	return funcName
}

// buildFields renders entry data as sorted key=value pairs.
func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		val := entry.Data[key]
		stringVal, ok := val.(string)
		if !ok {
			stringVal = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
