package main

import (
	"context"
	"flag"
	"github.com/peterbourgon/ff/v3"
	"github.com/shimmeringbee/logwrap"
	"os"
	"path/filepath"
)

const DefaultDirectoryPermissions = 0700

type Directories struct {
	Config string
	Log    string
}

func enumerateDirectories(ctx context.Context, l logwrap.Logger) Directories {
	directories, err := parseDirectories(os.Args[1:])
	if err != nil {
		l.LogFatal(ctx, "Failed to parse environment/command line arguments.", logwrap.Err(err))
	}

	if err := os.MkdirAll(directories.Config, DefaultDirectoryPermissions); err != nil {
		l.LogFatal(ctx, "Failed to initialise configuration directory.", logwrap.Err(err))
	}

	if err := os.MkdirAll(directories.Log, DefaultDirectoryPermissions); err != nil {
		l.LogFatal(ctx, "Failed to initialise log directory.", logwrap.Err(err))
	}

	return directories
}

func parseDirectories(args []string) (Directories, error) {
	fs := flag.NewFlagSet("bandgateway", flag.ContinueOnError)

	defaultConfigDirectory, err := defaultDirectory("config")
	if err != nil {
		return Directories{}, err
	}

	defaultLogDirectory, err := defaultDirectory("log")
	if err != nil {
		return Directories{}, err
	}

	configDirectory := fs.String("config-directory", defaultConfigDirectory, "location of configuration files")
	logDirectory := fs.String("log-directory", defaultLogDirectory, "location of log files")

	if err := ff.Parse(fs, args, ff.WithEnvVarNoPrefix()); err != nil {
		return Directories{}, err
	}

	return Directories{
		Config: *configDirectory,
		Log:    *logDirectory,
	}, nil
}

func defaultDirectory(t string) (string, error) {
	if configDir, err := os.UserConfigDir(); err != nil {
		return "", err
	} else {
		return filepath.Join(configDir, "passabola", "bandgateway", t), nil
	}
}
