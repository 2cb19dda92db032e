package retry

import "context"

// DoWithResult is a type-safe wrapper around Retryer.Do.
//
//	val, attempts, err := retry.DoWithResult(r, ctx, func(ctx context.Context, attempt int) (int, error) {
//	    return 42, nil
//	})
func DoWithResult[T any](r Retryer, ctx context.Context, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var result T
	attempts, err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		v, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, attempts, err
	}
	return result, attempts, nil
}
