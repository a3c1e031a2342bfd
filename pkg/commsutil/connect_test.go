package commsutil

import (
	"testing"
	"time"

	comms "github.com/nats-io/nats.go"
)

const connectTestPrefix = "commsutil:connect_test"

func TestConnect_InvalidURL(t *testing.T) {
	nc, err := Connect(ConnectParams{URL: "invalid://not-a-nats-server", Name: "bridge-test"})
	if err == nil {
		nc.Close()
		t.Fatalf("%s - expected error for invalid URL", connectTestPrefix)
	}
	if nc != nil {
		t.Errorf("%s - expected nil connection on error", connectTestPrefix)
	}
}

func TestConnectParams_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		in       ConnectParams
		wantMax  int
		wantWait time.Duration
	}{
		{"zero values", ConnectParams{}, comms.DefaultMaxReconnect, defaultReconnectWait},
		{"retry forever", ConnectParams{MaxReconnects: -1}, -1, defaultReconnectWait},
		{"explicit", ConnectParams{MaxReconnects: 5, ReconnectWait: time.Second}, 5, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()
			if got.MaxReconnects != tt.wantMax || got.ReconnectWait != tt.wantWait {
				t.Errorf("%s - withDefaults() = %d/%v, want %d/%v", connectTestPrefix, got.MaxReconnects, got.ReconnectWait, tt.wantMax, tt.wantWait)
			}
		})
	}
}
