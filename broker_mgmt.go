package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/nest"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
	"github.com/sys0xFF/challange-passabola-sub002/command"
	"github.com/sys0xFF/challange-passabola-sub002/config"
	"github.com/sys0xFF/challange-passabola-sub002/roster"
	"github.com/sys0xFF/challange-passabola-sub002/telemetry"
	"net/http"
	"os"
	"time"
)

// Gateway holds the components every interface shares, all backed by a single
// broker client.
type Gateway struct {
	Resolver   broker.Resolver
	Aggregator *telemetry.Aggregator
	Roster     *roster.Service
	Dispatcher *command.Dispatcher
}

func loadBrokerConfiguration(path string) (config.BrokerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.BrokerConfig{}, fmt.Errorf("broker configuration file '%s' does not exist, see example configuration", path)
		}

		return config.BrokerConfig{}, fmt.Errorf("failed to read broker configuration file '%s': %w", path, err)
	}

	var cfg config.BrokerConfig

	if err := json.Unmarshal(data, &cfg); err != nil {
		return config.BrokerConfig{}, fmt.Errorf("failed to parse broker configuration file '%s': %w", path, err)
	}

	return cfg, nil
}

func startBroker(cfg config.BrokerConfig, reg prometheus.Registerer, l logwrap.Logger) (Gateway, error) {
	switch bCfg := cfg.Config.(type) {
	case *config.NGSIv2Config:
		return startNGSIv2Broker(*bCfg, reg, l)
	default:
		return Gateway{}, fmt.Errorf("unknown broker type loaded: %s", cfg.Type)
	}
}

func startNGSIv2Broker(cfg config.NGSIv2Config, reg prometheus.Registerer, l logwrap.Logger) (Gateway, error) {
	var metrics *broker.Metrics

	if reg != nil {
		metrics = broker.NewMetrics(reg)
	}

	client := broker.New(broker.Config{
		OrionURL:    cfg.OrionURL,
		IoTAgentURL: cfg.IoTAgentURL,
		Service:     cfg.Service,
		ServicePath: cfg.ServicePath,
		HTTPClient:  &http.Client{Timeout: milliseconds(cfg.RequestTimeout)},
		Metrics:     metrics,
	})

	return Gateway{
		Resolver: broker.Resolver{Prefix: cfg.EntityPrefix},
		Aggregator: &telemetry.Aggregator{
			Reader:      client,
			ReadTimeout: milliseconds(cfg.ReadTimeout),
			Logger:      subsystemLogger(l, "telemetry"),
		},
		Roster: &roster.Service{
			Lister:         client,
			BandType:       cfg.BandType,
			TestEntityName: cfg.TestEntityName,
			Logger:         subsystemLogger(l, "roster"),
		},
		Dispatcher: &command.Dispatcher{
			Updater: client,
			Logger:  subsystemLogger(l, "command"),
		},
	}, nil
}

func subsystemLogger(l logwrap.Logger, source string) logwrap.Logger {
	sl := logwrap.New(nest.Wrap(l))
	sl.AddOptionsToLogger(logwrap.Source(source))
	return sl
}

func milliseconds(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
