package diet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTextureConflict is wrapped by TextureConflict.
var ErrTextureConflict = errors.New("texture conflict")

// TextureConflict describes bread-equivalent items that a texture-modified
// patient may not receive.
type TextureConflict struct {
	Reason    string
	Offending []Item
}

func (c *TextureConflict) Error() string {
	names := make([]string, len(c.Offending))
	for i, it := range c.Offending {
		names[i] = it.Name
	}
	return fmt.Sprintf("%s: %s", c.Reason, strings.Join(names, ", "))
}

func (c *TextureConflict) Unwrap() error { return ErrTextureConflict }

// ValidationResult is the outcome of ValidateTexture. A nil Conflict means Ok.
type ValidationResult struct {
	Conflict *TextureConflict
}

// OK reports whether the selection passed.
func (r ValidationResult) OK() bool { return r.Conflict == nil }

// Err returns the conflict as an error, or nil.
func (r ValidationResult) Err() error {
	if r.Conflict == nil {
		return nil
	}
	return r.Conflict
}

// ValidateTexture checks a selection against the texture flags. It never
// modifies items.
func ValidateTexture(mods TextureModifications, items []Item) ValidationResult {
	if !mods.RestrictsBread() {
		return ValidationResult{}
	}
	var offending []Item
	for _, it := range items {
		if it.BreadEquivalent() {
			offending = append(offending, it)
		}
	}
	if len(offending) == 0 {
		return ValidationResult{}
	}
	return ValidationResult{Conflict: &TextureConflict{
		Reason:    textureReason(mods),
		Offending: offending,
	}}
}

// DropConflicts returns the items allowed under mods and the ones removed.
// Used by automated callers that prefer dropping over blocking.
func DropConflicts(mods TextureModifications, items []Item) (kept, dropped []Item) {
	if !mods.RestrictsBread() {
		return append([]Item(nil), items...), nil
	}
	for _, it := range items {
		if it.BreadEquivalent() {
			dropped = append(dropped, it)
			continue
		}
		kept = append(kept, it)
	}
	return kept, dropped
}

func textureReason(mods TextureModifications) string {
	switch {
	case mods.MechanicalGround && mods.MechanicalChopped:
		return "mechanical ground/chopped diet without bread ok excludes bread items"
	case mods.MechanicalGround:
		return "mechanical ground diet without bread ok excludes bread items"
	default:
		return "mechanical chopped diet without bread ok excludes bread items"
	}
}
