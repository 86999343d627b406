package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dietorders/internal/domain/diet"
)

const dateLayout = "2006-01-02"

// parseDate parses YYYY-MM-DD in loc. An empty string yields fallback.
func parseDate(s string, loc *time.Location, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

// parseItem parses "Name|Category|ml". Category and volume are optional.
func parseItem(s string) (diet.Item, error) {
	parts := strings.Split(s, "|")
	if len(parts) > 3 {
		return diet.Item{}, fmt.Errorf("invalid item %q, want name|category|ml", s)
	}
	item := diet.Item{Name: strings.TrimSpace(parts[0])}
	if item.Name == "" {
		return diet.Item{}, fmt.Errorf("invalid item %q: name is required", s)
	}
	if len(parts) > 1 {
		item.Category = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		raw := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(parts[2])), "ml")
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return diet.Item{}, fmt.Errorf("invalid volume in item %q", s)
		}
		item.VolumeML = &v
	}
	return item, nil
}

func parseItems(specs []string) ([]diet.Item, error) {
	var out []diet.Item
	for _, s := range specs {
		it, err := parseItem(s)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

var textureFlags = map[string]func(m *diet.TextureModifications){
	"mechanical-ground":  func(m *diet.TextureModifications) { m.MechanicalGround = true },
	"mechanical-chopped": func(m *diet.TextureModifications) { m.MechanicalChopped = true },
	"bite-size":          func(m *diet.TextureModifications) { m.BiteSize = true },
	"bread-ok":           func(m *diet.TextureModifications) { m.BreadOK = true },
	"extra-gravy":        func(m *diet.TextureModifications) { m.ExtraGravy = true },
	"meats-only":         func(m *diet.TextureModifications) { m.MeatsOnly = true },
	"nectar-thick":       func(m *diet.TextureModifications) { m.NectarThick = true },
	"honey-thick":        func(m *diet.TextureModifications) { m.HoneyThick = true },
	"pudding-thick":      func(m *diet.TextureModifications) { m.PuddingThick = true },
}

// parseTexture builds modifications from flag names such as
// "mechanical-ground" or "bread_ok".
func parseTexture(names []string) (diet.TextureModifications, error) {
	var mods diet.TextureModifications
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
		if key == "" {
			continue
		}
		set, ok := textureFlags[key]
		if !ok {
			return mods, fmt.Errorf("unknown texture modification %q", n)
		}
		set(&mods)
	}
	return mods, nil
}
