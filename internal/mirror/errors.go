// Package mirror publishes observations to optional secondary destinations
// (InfluxDB, MQTT) alongside the relational table.
package mirror

import "errors"

var (
	// ErrDisabled is returned by constructors when the mirror is not configured.
	ErrDisabled = errors.New("mirror disabled")

	// ErrConnectionFailed is returned when a mirror cannot reach its server.
	ErrConnectionFailed = errors.New("mirror connection failed")
)
