package event

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
)

// zerologAdapter routes watermill's logs through the process logger.
type zerologAdapter struct {
	fields watermill.LogFields
	name   string
}

// NewLogger returns a watermill logger writing to the global zerolog logger
// under the given component name.
func NewLogger(component string) watermill.LoggerAdapter {
	return &zerologAdapter{name: component}
}

func (a *zerologAdapter) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range a.fields {
		e = e.Interface(k, v)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(logging.Component(a.name).Error(), fields).Err(err).Msg(msg)
}

func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	// watermill is chatty at info level
	a.event(logging.Component(a.name).Debug(), fields).Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(logging.Component(a.name).Debug(), fields).Msg(msg)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(logging.Component(a.name).Trace(), fields).Msg(msg)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{name: a.name, fields: a.fields.Add(fields)}
}
