package latticelog

import "gopkg.in/natefinch/lumberjack.v2"

// FileHandlerOptions configures rotation for NewFileHandler.
type FileHandlerOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFileHandler returns a Handler that appends plain (uncolored) lines
// to a rotating log file, for the node's --log.file flag.
func NewFileHandler(opts FileHandlerOptions) Handler {
	w := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    orDefault(opts.MaxSizeMB, 100),
		MaxBackups: orDefault(opts.MaxBackups, 5),
		MaxAge:     orDefault(opts.MaxAgeDays, 28),
	}
	return &streamHandler{w: w, color: false}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// MultiHandler fans a record out to several handlers, stopping at the
// first error.
type MultiHandler struct {
	Handlers []Handler
}

func (m MultiHandler) Log(r *Record) error {
	for _, h := range m.Handlers {
		if err := h.Log(r); err != nil {
			return err
		}
	}
	return nil
}
