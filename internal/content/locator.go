package content

import (
	"context"
	"fmt"
	"strings"
)

const defaultSpriteBase = "https://img.pokemondb.net/sprites/red-blue/normal"

// SpriteLocator turns a chosen label into a fetchable sprite URL.
type SpriteLocator struct {
	base string
}

func NewSpriteLocator(base string) *SpriteLocator {
	if base == "" {
		base = defaultSpriteBase
	}
	return &SpriteLocator{base: strings.TrimSuffix(base, "/")}
}

func (l *SpriteLocator) Locate(_ context.Context, label string) (string, error) {
	return fmt.Sprintf("%s/%s.png", l.base, strings.ToLower(label)), nil
}
