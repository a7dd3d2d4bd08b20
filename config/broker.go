package config

import (
	"encoding/json"
	"fmt"
	"github.com/tidwall/gjson"
)

type BrokerConfig struct {
	Type   string
	Config any
}

func (b *BrokerConfig) UnmarshalJSON(data []byte) error {
	if result := gjson.GetBytes(data, "Type"); !result.Exists() {
		return fmt.Errorf("failed to find broker type information")
	} else {
		b.Type = result.String()
	}

	switch b.Type {
	case "ngsiv2":
		b.Config = DefaultNGSIv2Config()
	default:
		return fmt.Errorf("unknown broker configuration type: %s", b.Type)
	}

	if result := gjson.GetBytes(data, "Config"); result.Exists() {
		if err := json.Unmarshal([]byte(result.Raw), b.Config); err != nil {
			return err
		}
	} else {
		return fmt.Errorf("unable to find Config stanza: %s", b.Type)
	}

	if cfg, ok := b.Config.(*NGSIv2Config); ok {
		if len(cfg.OrionURL) == 0 {
			return fmt.Errorf("broker configuration missing OrionURL")
		}

		if len(cfg.IoTAgentURL) == 0 {
			return fmt.Errorf("broker configuration missing IoTAgentURL")
		}
	}

	return nil
}

// NGSIv2Config describes a FIWARE style deployment, with attributes served by
// Orion and the device registry by an IoT Agent. Timeouts are in milliseconds.
type NGSIv2Config struct {
	OrionURL    string
	IoTAgentURL string

	Service     string
	ServicePath string

	EntityPrefix   string
	BandType       string
	TestEntityName string

	ReadTimeout    int
	RequestTimeout int
}

func DefaultNGSIv2Config() *NGSIv2Config {
	return &NGSIv2Config{
		Service:        "smart",
		ServicePath:    "/",
		EntityPrefix:   "urn:ngsi-ld:Band",
		BandType:       "Band",
		TestEntityName: "urn:ngsi-ld:Band:test",
		ReadTimeout:    5000,
		RequestTimeout: 30000,
	}
}
