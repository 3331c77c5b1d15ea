// Package latticelog is a structured, leveled logger modeled on
// go-ethereum's log package: a Logger carries a set of bound key/value
// context pairs, level filtering happens at the handler, and the default
// terminal handler colorizes by level when stderr is a TTY.
package latticelog

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

// Lvl is a log level, ordered from most to least severe.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Record is one emitted log line, passed to a Handler.
type Record struct {
	Time    time.Time
	Lvl     Lvl
	Msg     string
	Ctx     []any
	Call    stack.Call
}

// Handler processes a Record; handlers compose (filter -> format -> write).
type Handler interface {
	Log(r *Record) error
}

// Logger emits leveled, structured log lines with a bound context.
type Logger interface {
	New(ctx ...any) Logger
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
}

type logger struct {
	ctx []any
	h   *handlerRef
}

// handlerRef allows Root().SetHandler to retarget every already-created
// Logger (they all share the pointer), matching go-ethereum's root logger
// semantics.
type handlerRef struct {
	mu sync.RWMutex
	h  Handler
}

func (hr *handlerRef) get() Handler {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return hr.h
}

func (hr *handlerRef) set(h Handler) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.h = h
}

var root = &logger{h: &handlerRef{h: defaultHandler()}}

// Root returns the package-wide root logger.
func Root() Logger { return root }

// DefaultHandler returns a fresh console handler of the kind Root starts
// with, for callers (e.g. the CLI) that want to keep console output
// while adding a second handler such as NewFileHandler via MultiHandler.
func DefaultHandler() Handler { return defaultHandler() }

// New returns a new Logger rooted at the package root logger, bound with
// the given alternating key/value context.
func New(ctx ...any) Logger { return root.New(ctx...) }

// SetHandler replaces the handler used by every Logger derived from Root.
func SetHandler(h Handler) { root.h.set(h) }

func (l *logger) New(ctx ...any) Logger {
	return &logger{ctx: append(append([]any{}, l.ctx...), ctx...), h: l.h}
}

func (l *logger) write(lvl Lvl, msg string, ctx []any) {
	r := &Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Ctx:  append(append([]any{}, l.ctx...), ctx...),
		Call: stack.Caller(2),
	}
	if h := l.h.get(); h != nil {
		_ = h.Log(r)
	}
}

func (l *logger) Trace(msg string, ctx ...any) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...any)  { l.write(LvlCrit, msg, ctx) }

// defaultHandler writes to stderr, colorized when it is a TTY.
func defaultHandler() Handler {
	fd := os.Stderr.Fd()
	useColor := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	var w io.Writer = os.Stderr
	if useColor {
		w = colorable.NewColorable(os.Stderr)
	}
	return &lvlFilterHandler{
		maxLvl: LvlInfo,
		next:   &streamHandler{w: w, color: useColor},
	}
}

type lvlFilterHandler struct {
	maxLvl Lvl
	next   Handler
}

func (f *lvlFilterHandler) Log(r *Record) error {
	if r.Lvl > f.maxLvl {
		return nil
	}
	return f.next.Log(r)
}

// SetLevel adjusts the root handler's maximum level, if the root handler
// is the default filter itself; any other root handler is left unchanged.
func SetLevel(lvl Lvl) {
	if f, ok := root.h.get().(*lvlFilterHandler); ok {
		f.maxLvl = lvl
	}
}

type streamHandler struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func (s *streamHandler) Log(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lvlStr := r.Lvl.String()
	if s.color {
		if c, ok := levelColor[r.Lvl]; ok {
			lvlStr = c.Sprint(lvlStr)
		}
	}
	fmt.Fprintf(s.w, "%s[%-5s] %-40s", r.Time.Format("2006-01-02T15:04:05.000"), lvlStr, r.Msg)
	for i := 0; i+1 < len(r.Ctx); i += 2 {
		fmt.Fprintf(s.w, " %v=%v", r.Ctx[i], r.Ctx[i+1])
	}
	fmt.Fprintln(s.w)
	return nil
}
