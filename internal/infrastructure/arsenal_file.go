package infrastructure

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"affrollup/internal/domain"
)

type arsenalFile struct {
	Arsenals []domain.Arsenal `yaml:"arsenals"`
}

// LoadArsenalFile reads arsenal definitions from YAML. The file holds either a single
// arsenal document or an "arsenals" list.
func LoadArsenalFile(path string) ([]domain.Arsenal, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arsenal file: %w", err)
	}
	return DecodeArsenals(raw)
}

func DecodeArsenals(raw []byte) ([]domain.Arsenal, error) {
	var file arsenalFile
	if err := decodeStrict(raw, &file); err == nil && len(file.Arsenals) > 0 {
		return file.Arsenals, nil
	}

	var single domain.Arsenal
	if err := decodeStrict(raw, &single); err != nil {
		return nil, fmt.Errorf("parse arsenal file: %w", err)
	}
	if single.Name == "" && len(single.CustomGroups) == 0 {
		return nil, fmt.Errorf("parse arsenal file: %w: no arsenal found", domain.ErrInvalidArsenal)
	}
	return []domain.Arsenal{single}, nil
}

func decodeStrict(raw []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
