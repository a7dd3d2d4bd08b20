package config

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestParseInterface(t *testing.T) {
	t.Run("errors if json is invalid", func(t *testing.T) {
		data := []byte(`"`)
		gw := InterfaceConfig{}

		err := json.Unmarshal(data, &gw)
		assert.Error(t, err)
	})

	t.Run("errors if type is unknown", func(t *testing.T) {
		data := []byte(`{"Type":"unknown"}`)
		gw := InterfaceConfig{}

		err := json.Unmarshal(data, &gw)
		assert.Error(t, err)
	})

	t.Run("http interface", func(t *testing.T) {
		t.Run("parses successfully", func(t *testing.T) {
			data := []byte(`{"Type":"http","Config":{"Port":3000,"EnabledAPIs":["v1","metrics"]}}`)
			gw := InterfaceConfig{}

			err := json.Unmarshal(data, &gw)
			assert.NoError(t, err)

			httpInt, ok := gw.Config.(*HTTPInterfaceConfig)
			assert.True(t, ok)

			assert.Equal(t, 3000, httpInt.Port)
			assert.Contains(t, httpInt.EnabledAPIs, "v1")
			assert.Contains(t, httpInt.EnabledAPIs, "metrics")
			assert.True(t, httpInt.StrictIdentifiers)
		})

		t.Run("permits strict identifiers to be disabled", func(t *testing.T) {
			data := []byte(`{"Type":"http","Config":{"Port":3000,"StrictIdentifiers":false}}`)
			gw := InterfaceConfig{}

			err := json.Unmarshal(data, &gw)
			assert.NoError(t, err)

			httpInt := gw.Config.(*HTTPInterfaceConfig)
			assert.False(t, httpInt.StrictIdentifiers)
		})
	})

	t.Run("mqtt interface", func(t *testing.T) {
		t.Run("parses successfully", func(t *testing.T) {
			data := []byte(`{"Type":"mqtt","Config":{"Server":"tcp://mosquitto:1883","TopicPrefix":"passabola","QOS":1,"Credentials":{"Username":"gateway","Password":"secret"},"PublishIndividualState":true}}`)
			gw := InterfaceConfig{}

			err := json.Unmarshal(data, &gw)
			assert.NoError(t, err)

			mqttInt, ok := gw.Config.(*MQTTInterfaceConfig)
			assert.True(t, ok)

			assert.Equal(t, "tcp://mosquitto:1883", mqttInt.Server)
			assert.Equal(t, "passabola", mqttInt.TopicPrefix)
			assert.Equal(t, byte(1), mqttInt.QOS)
			assert.Equal(t, "gateway", mqttInt.Credentials.Username)
			assert.Nil(t, mqttInt.TLS)
			assert.True(t, mqttInt.PublishAggregatedState)
			assert.True(t, mqttInt.PublishIndividualState)
		})
	})
}
