package ingest

import "encoding/json"

// Telemetry is a validated reading parsed from an inbound message.
type Telemetry struct {
	Volt   float64
	Ampere float64
	Watt   float64
	Energy float64
}

// parseResult classifies an inbound payload.
type parseResult int

const (
	parsedTelemetry parseResult = iota
	// parsedMalformed: not a JSON object at all.
	parsedMalformed
	// parsedCommandEcho: carries a command field. Control commands echoed
	// back by devices must not be treated as readings.
	parsedCommandEcho
	// parsedInvalid: JSON object but the telemetry fields are missing or
	// not numeric.
	parsedInvalid
)

// parsePayload decodes a raw payload. Telemetry requires volt, ampere, watt
// and energy all present as numbers.
func parsePayload(raw []byte) (Telemetry, parseResult) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Telemetry{}, parsedMalformed
	}

	if _, ok := fields["command"]; ok {
		return Telemetry{}, parsedCommandEcho
	}

	var t Telemetry
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"volt", &t.Volt},
		{"ampere", &t.Ampere},
		{"watt", &t.Watt},
		{"energy", &t.Energy},
	} {
		raw, ok := fields[f.key]
		if !ok {
			return Telemetry{}, parsedInvalid
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return Telemetry{}, parsedInvalid
		}
	}
	return t, parsedTelemetry
}
