package main

import (
	"context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	lw "github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

func main() {
	ctx := context.Background()
	l := lw.New(golog.Wrap(log.New(os.Stderr, "", log.LstdFlags)))

	l.LogInfo(ctx, "Passa a Bola: Band Gateway - Starting...")

	directories := enumerateDirectories(ctx, l)

	l.LogInfo(ctx, "Directory enumeration complete.", lw.Datum("directories", directories))

	if newLogger, err := configureLogging(filepath.Join(directories.Config, "logging"), directories.Log, l); err != nil {
		l.LogFatal(ctx, "Failed to configure logging.", lw.Err(err))
	} else {
		l = newLogger
	}

	brokerCfg, err := loadBrokerConfiguration(filepath.Join(directories.Config, "broker.json"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load broker configuration.", lw.Err(err))
	}

	interfaceCfgs, err := loadInterfaceConfigurations(filepath.Join(directories.Config, "interfaces"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load interface configurations.", lw.Err(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	l.LogInfo(ctx, "Initialising broker gateway.", lw.Datum("type", brokerCfg.Type))
	gw, err := startBroker(brokerCfg, registry, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to initialise broker gateway.", lw.Err(err))
	}

	l.LogInfo(ctx, "Starting interfaces.", lw.Datum("configCount", len(interfaceCfgs)))
	startedInterfaces, err := startInterfaces(interfaceCfgs, gw, registry, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to start interfaces.", lw.Err(err))
	}

	l.LogInfo(ctx, "Gateway ready.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	s := <-signalCh
	l.LogInfo(ctx, "Signal received, shutting down.", lw.Datum("signal", s.String()))

	for _, intf := range startedInterfaces {
		l.LogInfo(ctx, "Shutting down interface.", lw.Datum("interface", intf.Name))

		if err := intf.Shutdown(); err != nil {
			l.LogError(ctx, "Failed to shutdown interface.", lw.Err(err), lw.Datum("interface", intf.Name))
		}
	}

	l.LogInfo(ctx, "Shut down complete.")
}
