package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

// LoadSeed reads a seed file. Unknown keys are rejected so typos in a
// frontend definition do not silently fall back to defaults.
func LoadSeed(path string) (*SeedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*SeedDocument, error) {
	var doc SeedDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &domain.ConfigurationError{Field: "seed", Reason: "invalid YAML", Err: err}
	}
	return &doc, nil
}

// ApplySeed upserts backends, then frontends. A frontend naming an unknown
// backend aborts with a ConfigurationError. Records missing from the seed
// are left alone.
func ApplySeed(ctx context.Context, doc *SeedDocument, backends ports.BackendDirectory, frontends ports.FrontendDirectory, log logger.StyledLogger) error {
	for _, bd := range doc.Backends {
		b, err := bd.ToDomain()
		if err != nil {
			return &domain.ConfigurationError{Field: "seed.backends." + bd.ID, Reason: "invalid backend", Err: err}
		}
		if err := backends.Create(ctx, b); err != nil {
			return fmt.Errorf("seeding backend %s: %w", b.ID, err)
		}
		log.InfoWithBackend("Seeded backend", b.ID, "dialect", b.Dialect, "url", b.BaseURL().String())
	}

	for _, fd := range doc.Frontends {
		f, err := fd.ToDomain()
		if err != nil {
			return &domain.ConfigurationError{Field: "seed.frontends." + fd.ID, Reason: "invalid frontend", Err: err}
		}
		if err := frontends.Create(ctx, f); err != nil {
			return fmt.Errorf("seeding frontend %s: %w", f.ID, err)
		}
		log.InfoWithFrontend("Seeded frontend", f.ID, "hostname", f.Hostname, "backends", len(f.Backends))
	}
	return nil
}
