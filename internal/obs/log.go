package obs

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/op/go-logging"
)

const module = "tcpfwd"

var (
	mu      sync.Mutex
	logger  = logging.MustGetLogger(module)
	format  = logging.MustStringFormatter("%{time:2006-01-02T15:04:05.000Z07:00} %{level:.4s} %{message}")
	leveled logging.LeveledBackend
	debug   bool
)

func init() { SetOutput(os.Stderr) }

// Fields are rendered as sorted key=value pairs after the event name.
type Fields map[string]any

// SetOutput points the log backend at w. The process logs to stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	backend := logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), format)
	leveled = logging.AddModuleLevel(backend)
	leveled.SetLevel(level(), module)
	logger.SetBackend(leveled)
}

// EnableDebug globally enables debug logs.
func EnableDebug(v bool) {
	mu.Lock()
	defer mu.Unlock()
	debug = v
	leveled.SetLevel(level(), module)
}

func level() logging.Level {
	if debug {
		return logging.DEBUG
	}
	return logging.INFO
}

func line(msg string, f Fields) string {
	if len(f) == 0 {
		return msg
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		v := fmt.Sprint(f[k])
		if v == "" || strings.ContainsAny(v, " \t\"=") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

func Info(msg string, f Fields)  { logger.Infof("%s", line(msg, f)) }
func Warn(msg string, f Fields)  { logger.Warningf("%s", line(msg, f)) }
func Error(msg string, f Fields) { logger.Errorf("%s", line(msg, f)) }
func Debug(msg string, f Fields) { logger.Debugf("%s", line(msg, f)) }
