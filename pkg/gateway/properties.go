package gateway

import (
	"strconv"
)

// Well-known connection property keys.
const (
	PropHost    = "hostName"
	PropChannel = "channelName"
	PropPort    = "port"
	PropUserID  = "userID"
)

// Properties is the connection parameter map captured by Connect and reused
// verbatim by Reconnect.
type Properties map[string]string

// NewProperties builds a property map from discrete connection parameters.
// The user id is optional and omitted when empty.
func NewProperties(host, channel string, port int, userID string) Properties {
	props := Properties{
		PropHost:    host,
		PropChannel: channel,
		PropPort:    strconv.Itoa(port),
	}
	if userID != "" {
		props[PropUserID] = userID
	}

	return props
}

// Port returns the port property parsed as an integer.
func (p Properties) Port() (int, error) {
	return strconv.Atoi(p[PropPort])
}

// validate runs before any network attempt is made.
func (p Properties) validate() error {
	if len(p) == 0 {
		return &PropertyError{Key: "*", Reason: "property map is empty"}
	}

	for _, key := range []string{PropHost, PropChannel, PropPort} {
		if p[key] == "" {
			return &PropertyError{Key: key, Reason: "missing"}
		}
	}

	if _, err := strconv.Atoi(p[PropPort]); err != nil {
		return &PropertyError{Key: PropPort, Reason: "not an integer"}
	}

	return nil
}

func (p Properties) clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}
