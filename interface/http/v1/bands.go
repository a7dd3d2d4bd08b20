package v1

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
	"github.com/sys0xFF/challange-passabola-sub002/command"
	"github.com/sys0xFF/challange-passabola-sub002/roster"
	"github.com/sys0xFF/challange-passabola-sub002/telemetry"
	"io"
	"net/http"
)

const maximumCommandSize = 64 << 10

type telemetryAggregator interface {
	Aggregate(context.Context, broker.EntityID) (telemetry.Result, error)
}

type rosterLister interface {
	List(context.Context) (roster.Roster, error)
}

type commandDispatcher interface {
	Dispatch(context.Context, broker.EntityID, broker.Payload) error
}

type bandController struct {
	resolver          broker.Resolver
	strictIdentifiers bool

	aggregator telemetryAggregator
	roster     rosterLister
	dispatcher commandDispatcher

	logger logwrap.Logger
}

type commandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (b *bandController) listBands(w http.ResponseWriter, r *http.Request) {
	bands, err := b.roster.List(r.Context())
	if err != nil {
		if status, ok := broker.RejectionStatus(err); ok {
			b.logger.LogWarn(r.Context(), "Broker rejected device registry request.", logwrap.Datum("operation", "listBands"), logwrap.Datum("status", status))
			writeJSON(w, status, commandResponse{Message: "Device registry request was rejected by the broker."})
			return
		}

		b.logger.LogError(r.Context(), "Failed to list bands.", logwrap.Datum("operation", "listBands"), logwrap.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, bands)
}

func (b *bandController) getBand(w http.ResponseWriter, r *http.Request) {
	band, entity, ok := b.resolveBand(w, r)
	if !ok {
		return
	}

	result, err := b.aggregator.Aggregate(r.Context(), entity)
	if err != nil {
		b.logger.LogError(r.Context(), "Failed to aggregate band telemetry.", logwrap.Datum("operation", "getBand"), logwrap.Datum("band", band), logwrap.Datum("entity", string(entity)), logwrap.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (b *bandController) updateBand(w http.ResponseWriter, r *http.Request) {
	band, entity, ok := b.resolveBand(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maximumCommandSize))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payload := broker.Payload(data)
	if !payload.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := b.dispatcher.Dispatch(r.Context(), entity, payload); err != nil {
		var rejection *command.Rejection

		if errors.Is(err, command.ErrInvalidPayload) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		} else if errors.As(err, &rejection) {
			writeJSON(w, rejection.Status, commandResponse{Message: rejection.Message})
		} else {
			b.logger.LogError(r.Context(), "Failed to dispatch band command.", logwrap.Datum("operation", "updateBand"), logwrap.Datum("band", band), logwrap.Datum("entity", string(entity)), logwrap.Err(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}

		return
	}

	writeJSON(w, http.StatusOK, commandResponse{Success: true})
}

func (b *bandController) resolveBand(w http.ResponseWriter, r *http.Request) (string, broker.EntityID, bool) {
	params := mux.Vars(r)

	id, ok := params["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return "", "", false
	}

	if b.strictIdentifiers && !b.resolver.Valid(broker.BandIdentifier(id)) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return "", "", false
	}

	return id, b.resolver.Resolve(broker.BandIdentifier(id)), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
