package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/prefs"
)

// SaveListPreset stores p under (module, name), replacing an existing preset
// of the same name.
func (s *Storage) SaveListPreset(ctx context.Context, p *domain.StoredListSetting) error {
	data, err := json.Marshal(p.Settings.Values())
	if err != nil {
		return fmt.Errorf("encode list preset: %w", err)
	}

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO stored_list_settings (module, name, data) VALUES (?, ?, ?)
		ON CONFLICT(module, name) DO UPDATE SET data = excluded.data
	`, string(p.Module), p.Name, string(data)); err != nil {
		return fmt.Errorf("save list preset: %w", err)
	}

	return s.q.QueryRowContext(ctx,
		`SELECT id FROM stored_list_settings WHERE module = ? AND name = ?`,
		string(p.Module), p.Name).Scan(&p.ID)
}

func (s *Storage) ListPresets(ctx context.Context, m domain.Module) ([]*domain.StoredListSetting, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, module, name, data FROM stored_list_settings WHERE module = ? ORDER BY name`, string(m))
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var out []*domain.StoredListSetting
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Storage) GetListPreset(ctx context.Context, id int64) (*domain.StoredListSetting, error) {
	p, err := scanPreset(s.q.QueryRowContext(ctx,
		`SELECT id, module, name, data FROM stored_list_settings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Storage) DeleteListPreset(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM stored_list_settings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete list preset: %w", err)
	}
	return nil
}

func scanPreset(row rowScanner) (*domain.StoredListSetting, error) {
	var p domain.StoredListSetting
	var module, data string
	if err := row.Scan(&p.ID, &module, &p.Name, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan list preset: %w", err)
	}
	p.Module = domain.Module(module)

	var values prefs.Values
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		// A corrupt preset loads as the defaults.
		values = prefs.Values{}
	}
	p.Settings = domain.NewListSettings(p.Module)
	p.Settings.ApplyValues(values)
	return &p, nil
}
