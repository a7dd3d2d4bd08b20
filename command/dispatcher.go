package command

import (
	"context"
	"errors"
	"fmt"
	"github.com/shimmeringbee/logwrap"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
)

type commandError string

func (e commandError) Error() string {
	return string(e)
}

const ErrInvalidPayload = commandError("command payload is not valid json")

type AttributeUpdater interface {
	UpdateAttributes(context.Context, broker.EntityID, broker.Payload) error
}

// Rejection is returned when the broker refused a command, Status is the
// broker's status code verbatim.
type Rejection struct {
	Status  int
	Message string
	Cause   error
}

func (r *Rejection) Error() string {
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Cause
}

type Dispatcher struct {
	Updater AttributeUpdater
	Logger  logwrap.Logger
}

// Dispatch relays an attribute update for an entity to the broker. The payload
// is only checked for being well formed json, the broker owns its schema.
func (d *Dispatcher) Dispatch(ctx context.Context, id broker.EntityID, payload broker.Payload) error {
	if !payload.Valid() {
		return ErrInvalidPayload
	}

	err := d.Updater.UpdateAttributes(ctx, id, payload)
	if err == nil {
		d.Logger.LogDebug(ctx, "Command accepted by broker.", logwrap.Datum("entity", string(id)))
		return nil
	}

	var f *broker.Failure
	if errors.As(err, &f) && f.Kind == broker.Rejected {
		d.Logger.LogWarn(ctx, "Command rejected by broker.", logwrap.Datum("entity", string(id)), logwrap.Datum("status", f.Status))

		return &Rejection{
			Status:  f.Status,
			Message: fmt.Sprintf("Broker rejected command with status %d.", f.Status),
			Cause:   err,
		}
	}

	return fmt.Errorf("failed to dispatch command to %s: %w", id, err)
}
