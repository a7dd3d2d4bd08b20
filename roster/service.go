package roster

import (
	"context"
	"fmt"
	"github.com/shimmeringbee/logwrap"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
	"github.com/tidwall/gjson"
)

const (
	DefaultBandType       = "Band"
	DefaultTestEntityName = "urn:ngsi-ld:Band:test"
)

type DeviceLister interface {
	ListDevices(context.Context) (broker.Payload, error)
}

// Device is a single registry entry. The fields are those used for filtering,
// clients receive the registry's own document for the device.
type Device struct {
	DeviceID   string
	EntityName string
	EntityType string
	Transport  string
	Protocol   string

	Raw broker.Payload
}

func (d Device) MarshalJSON() ([]byte, error) {
	return d.Raw.MarshalJSON()
}

type Roster struct {
	Count   int      `json:"count"`
	Devices []Device `json:"devices"`
}

type Service struct {
	Lister         DeviceLister
	BandType       string
	TestEntityName string
	Logger         logwrap.Logger
}

// List fetches the device registry, returning only band devices which are not
// the registry's test entity. Registry order is preserved.
func (s *Service) List(ctx context.Context) (Roster, error) {
	data, err := s.Lister.ListDevices(ctx)
	if err != nil {
		return Roster{}, err
	}

	devices, err := parseDevices(data)
	if err != nil {
		return Roster{}, err
	}

	filtered := make([]Device, 0, len(devices))

	for _, d := range devices {
		if d.EntityName == s.testEntityName() || d.EntityType != s.bandType() {
			continue
		}

		filtered = append(filtered, d)
	}

	s.Logger.LogDebug(ctx, "Filtered device registry.", logwrap.Datum("registered", len(devices)), logwrap.Datum("published", len(filtered)))

	return Roster{Count: len(filtered), Devices: filtered}, nil
}

func parseDevices(data broker.Payload) ([]Device, error) {
	if !data.Valid() {
		return nil, fmt.Errorf("%w: registry response is not json", broker.UnexpectedResponse)
	}

	list := gjson.GetBytes(data, "devices")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: registry response has no device list", broker.UnexpectedResponse)
	}

	var devices []Device

	for _, entry := range list.Array() {
		if !entry.IsObject() {
			return nil, fmt.Errorf("%w: registry entry is not an object", broker.UnexpectedResponse)
		}

		devices = append(devices, Device{
			DeviceID:   entry.Get("device_id").String(),
			EntityName: entry.Get("entity_name").String(),
			EntityType: entry.Get("entity_type").String(),
			Transport:  entry.Get("transport").String(),
			Protocol:   entry.Get("protocol").String(),
			Raw:        broker.Payload(entry.Raw),
		})
	}

	return devices, nil
}

func (s *Service) bandType() string {
	if len(s.BandType) == 0 {
		return DefaultBandType
	}

	return s.BandType
}

func (s *Service) testEntityName() string {
	if len(s.TestEntityName) == 0 {
		return DefaultTestEntityName
	}

	return s.TestEntityName
}
