// Package commsutil provides COMMS connection helpers, bridge subjects and the JSON codec.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReconnectWait  = 2 * time.Second
)

// ConnectParams configures Connect. Zero values fall back to defaults.
type ConnectParams struct {
	URL  string
	Name string
	// MaxReconnects < 0 retries forever. Zero uses the client default.
	MaxReconnects int
	ReconnectWait time.Duration
	// OnReconnect runs after the connection is re-established.
	OnReconnect func()
}

func (p ConnectParams) withDefaults() ConnectParams {
	if p.ReconnectWait <= 0 {
		p.ReconnectWait = defaultReconnectWait
	}
	if p.MaxReconnects == 0 {
		p.MaxReconnects = comms.DefaultMaxReconnect
	}
	return p
}

// Connect creates a COMMS connection. Open sessions outlive broker restarts, so callers
// usually retry forever.
func Connect(params ConnectParams) (*comms.Conn, error) {
	p := params.withDefaults()
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, p.URL, p.Name))

	nc, err := comms.Connect(p.URL,
		comms.Name(p.Name),
		comms.Timeout(defaultConnectTimeout),
		comms.ReconnectWait(p.ReconnectWait),
		comms.MaxReconnects(p.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
			if p.OnReconnect != nil {
				p.OnReconnect()
			}
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS at %s: %w", logPrefix, p.URL, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
