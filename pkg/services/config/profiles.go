package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Profile is one provider section of the secrets file.
type Profile struct {
	Name string
	Keys map[string]string
}

func (p Profile) Get(key string) string {
	return strings.TrimSpace(p.Keys[key])
}

func (p Profile) GetOr(key, def string) string {
	if v := p.Get(key); v != "" {
		return v
	}
	return def
}

func (p Profile) Float(key string) float64 {
	f, err := strconv.ParseFloat(p.Get(key), 64)
	if err != nil {
		return 0
	}
	return f
}

func (p Profile) Int(key string) int {
	i, err := strconv.Atoi(p.Get(key))
	if err != nil {
		return 0
	}
	return i
}

// Registry exposes provider profiles keyed by provider name.
type Registry interface {
	GetProfiles(ctx context.Context) ([]string, error)
	GetProfile(ctx context.Context, profile string) (Profile, error)
}

type cfgRegistry struct {
	cfg *ini.File
}

// NewRegistry loads an ini file. A missing path yields an empty registry so that
// private providers, which need no operator secrets, remain usable.
func NewRegistry(path string) (Registry, error) {
	if path == "" {
		return &cfgRegistry{cfg: ini.Empty()}, nil
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load provider profiles: %w", err)
	}
	return &cfgRegistry{cfg: cfg}, nil
}

// NewRegistryFromBytes is used by tests and embedded configurations.
func NewRegistryFromBytes(data []byte) (Registry, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse provider profiles: %w", err)
	}
	return &cfgRegistry{cfg: cfg}, nil
}

func (cr *cfgRegistry) GetProfiles(_ context.Context) ([]string, error) {
	var profiles []string
	for _, section := range cr.cfg.Sections() {
		if len(section.Keys()) > 0 {
			profiles = append(profiles, section.Name())
		}
	}
	return profiles, nil
}

func (cr *cfgRegistry) GetProfile(_ context.Context, profile string) (Profile, error) {
	section, err := cr.cfg.GetSection(profile)
	if err != nil {
		return Profile{Name: profile}, fmt.Errorf("profile %s not found", profile)
	}

	return Profile{
		Name: profile,
		Keys: section.KeysHash(),
	}, nil
}
