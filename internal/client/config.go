// Package client implements the fan-out driver described in spec.md
// §6: a thin layer that opens N connections to N agents, merges their
// streams, and aggregates per-host errors (§9 "Fan-out in the
// client").
package client

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Server is one configured agent endpoint.
type Server struct {
	ID      string   `toml:"id"`
	Address string   `toml:"address"`
	Tags    []string `toml:"tags"`
}

// Config is the client-side TOML configuration (spec.md §6).
type Config struct {
	Servers []Server `toml:"servers"`
}

// Load reads and validates the client configuration: ids and
// normalised addresses must each be unique.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read client config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse client config: %w", err)
	}

	seenIDs := make(map[string]struct{}, len(cfg.Servers))
	seenAddrs := make(map[string]struct{}, len(cfg.Servers))
	for _, s := range cfg.Servers {
		if _, dup := seenIDs[s.ID]; dup {
			return Config{}, fmt.Errorf("duplicate server id: %s", s.ID)
		}
		seenIDs[s.ID] = struct{}{}

		norm := normalizeAddress(s.Address)
		if _, dup := seenAddrs[norm]; dup {
			return Config{}, fmt.Errorf("duplicate server address: %s", s.Address)
		}
		seenAddrs[norm] = struct{}{}
	}
	return cfg, nil
}

// Save writes cfg back to path as TOML, overwriting the file.
func Save(path string, cfg Config) error {
	raw, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode client config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write client config: %w", err)
	}
	return nil
}

// AddServer registers a new server into cfg. It rejects a duplicate id
// or a duplicate normalized address, and deduplicates tags, mirroring
// the original client's add_server_to_config.
func AddServer(cfg Config, id, address string, tags []string) (Config, error) {
	id = strings.TrimSpace(id)
	for _, s := range cfg.Servers {
		if s.ID == id {
			return cfg, fmt.Errorf("server id %s is already taken", id)
		}
	}

	norm := normalizeAddress(address)
	for _, s := range cfg.Servers {
		if normalizeAddress(s.Address) == norm {
			return cfg, fmt.Errorf("server address %s is already taken", address)
		}
	}

	seen := make(map[string]struct{}, len(tags))
	var deduped []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		deduped = append(deduped, tag)
	}

	cfg.Servers = append(cfg.Servers, Server{ID: id, Address: address, Tags: deduped})
	return cfg, nil
}

// RemoveServer unregisters the server with the given id from cfg. It
// returns an error if no such server is registered.
func RemoveServer(cfg Config, id string) (Config, error) {
	idx := -1
	for i, s := range cfg.Servers {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return cfg, fmt.Errorf("no server with id %s is registered", id)
	}

	remaining := make([]Server, 0, len(cfg.Servers)-1)
	remaining = append(remaining, cfg.Servers[:idx]...)
	remaining = append(remaining, cfg.Servers[idx+1:]...)
	cfg.Servers = remaining
	return cfg, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(strings.ToLower(addr))
	addr = strings.TrimSuffix(addr, "/")
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr
}

// Select implements the selector syntax of spec.md §6: a bare token
// selects by id, a "t:<tag>" prefix selects all servers with that tag,
// and an empty selector list means "all servers".
func Select(servers []Server, selectors []string) []Server {
	if len(selectors) == 0 {
		return servers
	}

	var out []Server
	seen := make(map[string]struct{})
	add := func(s Server) {
		if _, ok := seen[s.ID]; ok {
			return
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}

	for _, sel := range selectors {
		if tag, ok := strings.CutPrefix(sel, "t:"); ok {
			for _, s := range servers {
				if containsString(s.Tags, tag) {
					add(s)
				}
			}
			continue
		}
		for _, s := range servers {
			if s.ID == sel {
				add(s)
			}
		}
	}
	return out
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
