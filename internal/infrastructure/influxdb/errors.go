package influxdb

import (
	"errors"
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

var (
	// ErrNotConnected indicates the client is closed or never connected.
	ErrNotConnected = fmt.Errorf("%w: influxdb: not connected", fault.ErrTransport)

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = fmt.Errorf("%w: influxdb: connection failed", fault.ErrTransport)

	// ErrDisabled indicates InfluxDB is disabled in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
