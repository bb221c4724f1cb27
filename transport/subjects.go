package transport

import "strings"

// DefaultNamespace is the address prefix for all system traffic.
const DefaultNamespace = "rakan"

// Subjects derives broker addresses from a shared namespace. Addresses use
// "/" as the logical separator; each binding renders them into its native
// form (NATS dots, MQTT slashes).
type Subjects struct {
	namespace string
}

// NewSubjects creates a Subjects rooted at namespace. An empty namespace
// falls back to DefaultNamespace.
func NewSubjects(namespace string) Subjects {
	namespace = strings.Trim(namespace, "/")
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Subjects{namespace: namespace}
}

// Namespace returns the root namespace.
func (s Subjects) Namespace() string {
	return s.namespace
}

// Events returns the address sensor events are published to.
func (s Subjects) Events() string {
	return s.namespace + "/events"
}

// Commands returns the per-device command address.
func (s Subjects) Commands(deviceID string) string {
	return s.namespace + "/commands/" + sanitizeID(deviceID)
}

// CommandsWildcard returns the address matching every device's commands.
func (s Subjects) CommandsWildcard() string {
	return s.namespace + "/commands/+"
}

// sanitizeID strips separator characters from device identifiers so they
// cannot alter address structure.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '.', '*', '>', '+', '#', ' ':
			return '-'
		}
		return r
	}, id)
}

// natsSubject renders a logical address into NATS subject form.
func natsSubject(address string) string {
	address = strings.ReplaceAll(address, "/", ".")
	return strings.ReplaceAll(address, "+", "*")
}

// mqttTopic renders a logical address into MQTT topic form. Logical
// addresses already use slashes so only the wildcard differs.
func mqttTopic(address string) string {
	return address
}
