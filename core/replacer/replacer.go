package replacer

import (
	"context"

	"content-history/core/schema"
)

// Replacer converts field values between storage and database form in place.
type Replacer interface {
	ToDatabase(ctx context.Context, info *schema.EntityInfo, fields map[string]string) error
	ToStorage(ctx context.Context, info *schema.EntityInfo, fields map[string]string) error
}

// Chain applies replacers in order towards the database and in reverse order
// towards storage.
type Chain []Replacer

// ToDatabase runs every replacer in order.
func (c Chain) ToDatabase(ctx context.Context, info *schema.EntityInfo, fields map[string]string) error {
	for _, r := range c {
		if err := r.ToDatabase(ctx, info, fields); err != nil {
			return err
		}
	}
	return nil
}

// ToStorage runs every replacer in reverse order.
func (c Chain) ToStorage(ctx context.Context, info *schema.EntityInfo, fields map[string]string) error {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].ToStorage(ctx, info, fields); err != nil {
			return err
		}
	}
	return nil
}
