package testutil

// Canonical event payloads for ingress tests.
var TestEventPayloads = []string{
	`{"deviceId":"sensor-1","type":"motion","data":{"motion":true},"timestamp":"2026-08-01T12:00:00Z"}`,
	`{"deviceId":"sensor-2","type":"temperature","data":{"temperature":80},"timestamp":"2026-08-01T12:00:01Z"}`,
	`{"deviceId":"door-1","type":"door","data":{"door_open":true},"timestamp":"2026-08-01T12:00:02Z"}`,
	`{"deviceId":"hum-1","type":"humidity","data":{"humidity":65},"timestamp":"2026-08-01T12:00:03Z"}`,
}

// Legacy payloads with readings at the top level instead of under data.
var TestLegacyEventPayloads = []string{
	`{"deviceId":"sensor-1","type":"motion","motion":true}`,
	`{"deviceId":"sensor-2","type":"temperature","value":80}`,
	`{"deviceId":"hum-1","type":"humidity","humidity":65}`,
}

// Malformed payloads the pipeline must reject without crashing.
var TestInvalidEventPayloads = []string{
	``,
	`not json`,
	`{"type":"motion","data":{"motion":true}}`,
	`{"deviceId":"","type":"motion"}`,
	`[1,2,3]`,
}
