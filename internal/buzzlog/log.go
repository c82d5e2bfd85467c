// Package buzzlog is bzzhost's leveled logger: colorized when attached to
// a terminal, caller-tagged via go-stack, plain otherwise. Grounded in
// the teacher's go.mod dependency set for this concern (fatih/color,
// mattn/go-colorable, mattn/go-isatty, go-stack/stack) — the teacher's
// own log package that pulls these in isn't part of the retrieval pack,
// so the implementation below follows the well-known shape that stack
// (go-ethereum's log15-derived logger) takes: level-tagged, colored by
// severity, one line per record.
package buzzlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a log record's severity.
type Level int

const (
	LvlCrit Level = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
)

var levelName = [...]string{"CRIT", "ERROR", "WARN", "INFO", "DEBUG"}
var levelColor = [...]*color.Color{
	color.New(color.FgRed, color.Bold),
	color.New(color.FgRed),
	color.New(color.FgYellow),
	color.New(color.FgGreen),
	color.New(color.FgCyan),
}

func (l Level) String() string {
	if int(l) < len(levelName) {
		return levelName[l]
	}
	return "UNKNOWN"
}

// Logger writes leveled, optionally colorized records to an output
// stream. One Logger is shared across a bzzhost run; bzzhost passes the
// robot id as a "robot" key/value pair on each record so records can be
// told apart.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	ctx    []any
	minLvl Level
}

// New returns a Logger writing to w, colorizing output if w is an
// *os.File attached to a terminal.
func New(w io.Writer) *Logger {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		if useColor {
			w = colorable.NewColorable(f)
		}
	}
	return &Logger{out: w, color: useColor, minLvl: LvlDebug}
}

// SetLevel suppresses records below lvl.
func (l *Logger) SetLevel(lvl Level) { l.minLvl = lvl }

// With returns a child Logger that prepends ctx (alternating key, value)
// to every record it emits.
func (l *Logger) With(ctx ...any) *Logger {
	child := &Logger{out: l.out, color: l.color, minLvl: l.minLvl}
	child.ctx = append(append([]any{}, l.ctx...), ctx...)
	return child
}

func (l *Logger) log(lvl Level, msg string, ctx []any) {
	if lvl > l.minLvl {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("15:04:05.000")
	tag := lvl.String()
	if l.color {
		tag = levelColor[lvl].Sprint(tag)
	}
	fmt.Fprintf(l.out, "[%s] %-5s %s", ts, tag, msg)
	all := append(append([]any{}, l.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", all[i], all[i+1])
	}
	if lvl <= LvlError {
		fmt.Fprintf(l.out, " caller=%v", stack.Caller(2))
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Crit(msg string, ctx ...any)  { l.log(LvlCrit, msg, ctx) }
func (l *Logger) Error(msg string, ctx ...any) { l.log(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...any)  { l.log(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...any)  { l.log(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...any) { l.log(LvlDebug, msg, ctx) }

// Root is the default logger, writing colorized records to stderr.
var Root = New(os.Stderr)
