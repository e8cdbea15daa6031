package mqtt

import "strings"

// DefaultTopicPrefix roots the topic tree when the config leaves it empty.
const DefaultTopicPrefix = "netfleet"

// Topics builds topic names under a prefix.
//
//	t := mqtt.Topics{Prefix: "netfleet"}
//	t.Event("device", "device_adopted") // netfleet/device/device_adopted
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// Event is the topic a committed event of the given aggregate kind and
// variant token is republished on.
func (t Topics) Event(kind, variant string) string {
	return t.root() + "/" + kind + "/" + variant
}
