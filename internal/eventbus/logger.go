package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog/log"
)

// zerologAdapter routes Watermill's internal logging through the global
// zerolog logger so bus internals show up alongside everything else.
type zerologAdapter struct {
	fields watermill.LogFields
}

func newLoggerAdapter() watermill.LoggerAdapter {
	return &zerologAdapter{}
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	log.Error().Err(err).Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	log.Info().Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	log.Debug().Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	log.Trace().Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{fields: a.fields.Add(fields)}
}
