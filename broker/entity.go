package broker

import (
	"fmt"
	"strings"
)

type BandIdentifier string

type EntityID string

const DefaultEntityPrefix = "urn:ngsi-ld:Band"

const entityNumeralWidth = 3

// Resolver maps the short identifiers used by clients onto the broker's entity
// names, e.g. "7" becomes "urn:ngsi-ld:Band:007".
type Resolver struct {
	Prefix string
}

// Resolve never fails. Decimal identifiers have their leading zeros normalised
// before padding, anything else is padded as given and embedded verbatim, which
// will usually result in an entity the broker does not know.
func (r Resolver) Resolve(id BandIdentifier) EntityID {
	numeral := strings.TrimSpace(string(id))

	if isDecimal(numeral) {
		numeral = strings.TrimLeft(numeral, "0")
	}

	if len(numeral) < entityNumeralWidth {
		numeral = strings.Repeat("0", entityNumeralWidth-len(numeral)) + numeral
	}

	return EntityID(fmt.Sprintf("%s:%s", r.prefix(), numeral))
}

// Valid reports if the identifier is a band numeral between 0 and 999.
func (r Resolver) Valid(id BandIdentifier) bool {
	trimmed := strings.TrimSpace(string(id))
	return len(trimmed) <= entityNumeralWidth && isDecimal(trimmed)
}

func (r Resolver) prefix() string {
	if len(r.Prefix) == 0 {
		return DefaultEntityPrefix
	}

	return strings.TrimSuffix(r.Prefix, ":")
}

func isDecimal(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
