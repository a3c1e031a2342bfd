package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
	"github.com/morezero/hybrid-bridge/pkg/mock"
	"github.com/morezero/hybrid-bridge/pkg/session"
)

const logPrefix = "manifest:loader"

// EnvManifestFile names the environment variable consulted after explicit paths.
const EnvManifestFile = "BRIDGE_MANIFEST_FILE"

// LoadManifest loads the manifest from file paths or environment.
// It tries any paths passed in, then BRIDGE_MANIFEST_FILE, then config/manifest.json
// and manifest.json, and falls back to the default manifest.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvManifestFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/manifest.json", "manifest.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse manifest file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded manifest from %s", logPrefix, p))
		return &m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return DefaultManifest(), nil
}

// DefaultManifest returns the built-in manifest: storage calls pinned to the worker pool, nothing mocked.
func DefaultManifest() *Manifest {
	return &Manifest{
		Name:        "hybrid-bridge-default",
		Version:     "1.0.0",
		Description: "Default bridge manifest",
		Threads: map[string]string{
			"storage.getItem":    "worker",
			"storage.setItem":    "worker",
			"storage.removeItem": "worker",
		},
	}
}

// Merge overlays override onto base. Maps are merged key by key; lists are appended.
func Merge(base, override *Manifest) *Manifest {
	merged := *base
	merged.Threads = make(map[string]string, len(base.Threads)+len(override.Threads))
	for k, v := range base.Threads {
		merged.Threads[k] = v
	}
	for k, v := range override.Threads {
		merged.Threads[k] = v
	}

	merged.Mocks = make(map[string]MockEntry, len(base.Mocks)+len(override.Mocks))
	for k, v := range base.Mocks {
		merged.Mocks[k] = v
	}
	for k, v := range override.Mocks {
		merged.Mocks[k] = v
	}

	merged.MutedEvents = append(append([]string(nil), base.MutedEvents...), override.MutedEvents...)
	merged.CloseCalls = append(append([]CloseCall(nil), base.CloseCalls...), override.CloseCalls...)

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	return &merged
}

// ThreadPolicies parses Threads. Entries with unknown thread names are skipped.
func (m *Manifest) ThreadPolicies() map[string]bridge.ThreadType {
	out := make(map[string]bridge.ThreadType, len(m.Threads))
	for name, raw := range m.Threads {
		t := bridge.ParseThreadType(raw)
		if t == bridge.ThreadUnspecified {
			slog.Warn(fmt.Sprintf("%s - Ignoring unknown thread %q for %s", logPrefix, raw, name))
			continue
		}
		out[name] = t
	}
	return out
}

// Fixtures builds a mock interceptor from Mocks and MutedEvents.
func (m *Manifest) Fixtures() *mock.Fixtures {
	results := make(map[string]bridge.Result, len(m.Mocks))
	for name, e := range m.Mocks {
		results[name] = e.Result()
	}
	f := mock.NewFixtures(results)
	for _, name := range m.MutedEvents {
		f.Mute(name)
	}
	return f
}

// InitListener returns a session init listener that applies the manifest.
// Fixtures are installed only when mockEnabled is set; all sessions share one
// Fixtures instance so hit counts aggregate.
func (m *Manifest) InitListener(mockEnabled bool) session.InitListener {
	policies := m.ThreadPolicies()
	var fixtures *mock.Fixtures
	if mockEnabled && m.HasMocks() {
		fixtures = m.Fixtures()
	}
	closeCalls := append([]CloseCall(nil), m.CloseCalls...)

	return func(s *session.Session) {
		for name, t := range policies {
			s.SetThreadPolicy(name, t)
		}
		for _, cc := range closeCalls {
			if cc.Params == nil {
				s.AddCloseCall(cc.Name, nil)
				continue
			}
			s.AddCloseCall(cc.Name, cc.Params)
		}
		if fixtures != nil {
			s.SetMock(fixtures)
		}
	}
}
