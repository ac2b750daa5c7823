package tracker

import "context"

// Update runs refresh, price and score in order, stopping at the first
// pass that fails.
func (t *Tracker) Update(ctx context.Context) ([]Summary, error) {
	passes := []func(context.Context) (Summary, error){t.Refresh, t.PricePending, t.Score}

	out := make([]Summary, 0, len(passes))
	for _, pass := range passes {
		sum, err := pass(ctx)
		out = append(out, sum)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
