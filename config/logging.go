package config

import (
	"encoding/json"
	"fmt"
	"github.com/tidwall/gjson"
)

type LoggingConfig struct {
	Name   string `json:"-"`
	Type   string
	Config any
}

func (g *LoggingConfig) UnmarshalJSON(data []byte) error {
	if result := gjson.GetBytes(data, "Type"); !result.Exists() {
		return fmt.Errorf("failed to find logging type information")
	} else {
		g.Type = result.String()
	}

	switch g.Type {
	case "stdout", "stderr":
		g.Config = &StreamLogging{}
	case "file":
		g.Config = &FileLogging{Size: 10, Count: 5}
	default:
		return fmt.Errorf("unknown logging configuration type: %s", g.Type)
	}

	if result := gjson.GetBytes(data, "Config"); result.Exists() {
		return json.Unmarshal([]byte(result.Raw), g.Config)
	}

	return nil
}

// BaseLogging filters log messages by level and by source, subsystems are
// matched against logwrap.Source values such as "http", "mqtt" or "broker".
type BaseLogging struct {
	Level string

	NegateSubsystems bool
	Subsystems       []string
}

type StreamLogging struct {
	BaseLogging
}

// FileLogging is rotated by size in megabytes, retaining Count old files.
type FileLogging struct {
	BaseLogging

	Filename string
	Size     int
	Count    int
	Compress bool
}
