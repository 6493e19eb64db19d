package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LineLogger returns a plain-text line sink backed by the global zerolog
// logger at debug level. The logger is resolved per call so it follows any
// later logging.Apply.
func LineLogger(component string) func(string) {
	return func(line string) {
		log.Debug().Str("component", component).Msg(line)
	}
}

// LineLoggerTo binds a line sink to a fixed zerolog logger.
func LineLoggerTo(logger zerolog.Logger, component string) func(string) {
	l := logger.With().Str("component", component).Logger()
	return func(line string) {
		l.Debug().Msg(line)
	}
}
