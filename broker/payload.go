package broker

import "github.com/tidwall/gjson"

// Payload is a JSON document relayed between clients and the broker without
// being interpreted by the gateway.
type Payload []byte

func (p Payload) Valid() bool {
	return len(p) > 0 && gjson.ValidBytes(p)
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}

	return p, nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[0:0], data...)
	return nil
}
