package game

import "context"

// ContentSource supplies one round's candidate labels along with the index
// of the correct one.
type ContentSource interface {
	Select(ctx context.Context, n int) (choices []string, answer int, err error)
}

// MediaLocator resolves a chosen label into a fetchable media reference
// for the question's image.
type MediaLocator interface {
	Locate(ctx context.Context, label string) (string, error)
}
