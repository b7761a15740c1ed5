package catalog

import (
	"context"
	"errors"
	"fmt"
)

// MaxUpdateAttempts bounds how often MutateProduct reloads after a version conflict
const MaxUpdateAttempts = 3

// MutateProduct loads product id, applies mutate and writes it back. mutate
// reports whether it changed anything; unchanged products are not written.
// A version conflict reloads the product and runs mutate again.
func MutateProduct(ctx context.Context, store ProductStore, id int64, mutate func(p *Product) bool) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		p, err := store.GetProduct(ctx, id)
		if err != nil {
			return false, fmt.Errorf("get product %d: %w", id, err)
		}
		if !mutate(p) {
			return false, nil
		}
		err = store.UpdateProduct(ctx, p)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return false, fmt.Errorf("update product %d: %w", id, err)
		}
		lastErr = err
	}
	return false, fmt.Errorf("update product %d after %d attempts: %w", id, MaxUpdateAttempts, lastErr)
}
