package ingest

import "testing"

func TestParsePayload(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want parseResult
	}{
		{"valid", `{"volt":230.1,"ampere":1.2,"watt":276,"energy":12.5}`, parsedTelemetry},
		{"valid with extras", `{"volt":230,"ampere":1,"watt":230,"energy":1,"rssi":-60}`, parsedTelemetry},
		{"not json", `not json`, parsedMalformed},
		{"json scalar", `42`, parsedMalformed},
		{"command echo", `{"command":"OFF"}`, parsedCommandEcho},
		{"echo beats telemetry", `{"command":"ON","volt":230,"ampere":1,"watt":230,"energy":1}`, parsedCommandEcho},
		{"missing energy", `{"volt":230,"ampere":1,"watt":230}`, parsedInvalid},
		{"string field", `{"volt":"230","ampere":1,"watt":230,"energy":1}`, parsedInvalid},
		{"null field", `{"volt":null,"ampere":1,"watt":230,"energy":1}`, parsedInvalid},
		{"empty object", `{}`, parsedInvalid},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, got := parsePayload([]byte(c.raw))
			if got != c.want {
				t.Fatalf("parsePayload(%s) = %v, want %v", c.raw, got, c.want)
			}
		})
	}
}

func TestParsePayloadValues(t *testing.T) {
	tel, res := parsePayload([]byte(`{"volt":231.5,"ampere":0.8,"watt":185.2,"energy":42.7}`))
	if res != parsedTelemetry {
		t.Fatalf("result = %v", res)
	}
	if tel.Volt != 231.5 || tel.Ampere != 0.8 || tel.Watt != 185.2 || tel.Energy != 42.7 {
		t.Fatalf("unexpected values: %+v", tel)
	}
}
