package config

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/storage"
)

// Bootstrap seeds preferences into an empty database from the inline list
// and the CSV file named in cfg. A database that already holds preferences
// is left untouched.
func Bootstrap(ctx context.Context, cfg *Config, store storage.PreferenceStore) error {
	n, err := store.CountPreferences(ctx)
	if err != nil {
		return fmt.Errorf("count preferences: %w", err)
	}
	if n > 0 {
		slog.Debug("preferences already present, skipping bootstrap", "count", n)
		return nil
	}

	prefs := make([]taste.Preference, 0, len(cfg.Bootstrap.Preferences))
	for _, p := range cfg.Bootstrap.Preferences {
		prefs = append(prefs, taste.Preference{UserID: p.UserID, ItemID: p.ItemID, Value: p.Value})
	}

	if path := cfg.Bootstrap.PreferencesCSV; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open preferences csv: %w", err)
		}
		fromFile, err := ReadPreferencesCSV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		prefs = append(prefs, fromFile...)
	}

	if len(prefs) == 0 {
		return nil
	}
	if err := store.InsertPreferences(ctx, prefs); err != nil {
		return fmt.Errorf("insert preferences: %w", err)
	}
	slog.Info("bootstrapped preferences", "count", len(prefs))
	return nil
}

// ReadPreferencesCSV parses user_id,item_id[,value] records. A missing value
// is a boolean preference of 1. Blank lines and lines starting with '#' are
// skipped, as is a leading header row.
func ReadPreferencesCSV(r io.Reader) ([]taste.Preference, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var prefs []taste.Preference
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return prefs, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		p, err := parsePreference(rec)
		if err != nil {
			row, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", row, err)
		}
		prefs = append(prefs, p)
	}
}

func isHeader(rec []string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	return err != nil
}

func parsePreference(rec []string) (taste.Preference, error) {
	if len(rec) < 2 || len(rec) > 3 {
		return taste.Preference{}, fmt.Errorf("want 2 or 3 fields, got %d", len(rec))
	}
	user, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	if err != nil {
		return taste.Preference{}, fmt.Errorf("user_id: %w", err)
	}
	item, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
	if err != nil {
		return taste.Preference{}, fmt.Errorf("item_id: %w", err)
	}
	value := 1.0
	if len(rec) == 3 {
		value, err = strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return taste.Preference{}, fmt.Errorf("value: %w", err)
		}
	}
	return taste.Preference{UserID: user, ItemID: item, Value: value}, nil
}
