package v1

import (
	"github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
	"github.com/sys0xFF/challange-passabola-sub002/command"
	"github.com/sys0xFF/challange-passabola-sub002/roster"
	"github.com/sys0xFF/challange-passabola-sub002/telemetry"
	"net/http"
)

type Options struct {
	Resolver          broker.Resolver
	StrictIdentifiers bool
}

func ConstructRouter(aggregator *telemetry.Aggregator, rosterService *roster.Service, dispatcher *command.Dispatcher, opts Options, l logwrap.Logger) http.Handler {
	return constructRouter(aggregator, rosterService, dispatcher, opts, l)
}

func constructRouter(aggregator telemetryAggregator, rosterService rosterLister, dispatcher commandDispatcher, opts Options, l logwrap.Logger) http.Handler {
	r := mux.NewRouter()

	bc := bandController{
		resolver:          opts.Resolver,
		strictIdentifiers: opts.StrictIdentifiers,
		aggregator:        aggregator,
		roster:            rosterService,
		dispatcher:        dispatcher,
		logger:            l,
	}

	r.HandleFunc("/bands", bc.listBands).Methods("GET")
	r.HandleFunc("/bands/{identifier}", bc.getBand).Methods("GET")
	r.HandleFunc("/bands/{identifier}", bc.updateBand).Methods("PATCH")

	return noCache(requestLogging(l, r))
}
