package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/storage"
)

// PresetService manages named list setting presets.
type PresetService struct {
	storage *storage.Storage
}

func NewPresetService(s *storage.Storage) *PresetService {
	return &PresetService{storage: s}
}

// Save stores the settings under name, replacing a preset of that name.
// The search text is not part of a preset.
func (s *PresetService) Save(ctx context.Context, name string, settings *domain.ListSettings) (*domain.StoredListSetting, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("preset name cannot be empty: %w", domain.ErrInvalidInput)
	}
	snapshot := settings.Clone()
	snapshot.SearchText = ""

	p := &domain.StoredListSetting{Module: snapshot.Module, Name: name, Settings: snapshot}
	if err := s.storage.SaveListPreset(ctx, p); err != nil {
		return nil, fmt.Errorf("save preset: %w", err)
	}
	return p, nil
}

func (s *PresetService) List(ctx context.Context, m domain.Module) ([]*domain.StoredListSetting, error) {
	return s.storage.ListPresets(ctx, m)
}

func (s *PresetService) Get(ctx context.Context, id int64) (*domain.StoredListSetting, error) {
	p, err := s.storage.GetListPreset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get preset: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("preset %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (s *PresetService) Delete(ctx context.Context, id int64) error {
	return s.storage.DeleteListPreset(ctx, id)
}
