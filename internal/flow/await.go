package flow

import (
	"context"
	"errors"

	"github.com/jmylchreest/alertflow/internal/model"
)

// ShowAlert submits a request for payload and blocks until it completes.
// It returns the key of the action the user picked, model.ActionDismiss
// when the request was dismissed without one, or model.ActionCancel when
// the request was rejected, superseded or withdrawn. If ctx ends first the
// request is withdrawn and ctx's error is returned.
func ShowAlert(ctx context.Context, s *Scope, tier model.Tier, payload model.Payload) (string, error) {
	r, err := model.NewRequest(tier, payload)
	if err != nil {
		return "", err
	}
	return Await(ctx, s, r)
}

// Await is ShowAlert for a prepared request. Any OnCancel or OnAction
// callback already set on r is replaced.
func Await(ctx context.Context, s *Scope, r *model.Request) (string, error) {
	done := make(chan string, 1)
	r.OnAction = func(key string) { done <- key }
	r.OnCancel = func() { done <- model.ActionCancel }

	if _, err := s.TrySubmit(r); err != nil && !errors.Is(err, ErrRejected) && !errors.Is(err, ErrScopeClosed) {
		return "", err
	}

	select {
	case key := <-done:
		return key, nil
	case <-ctx.Done():
		s.Withdraw(r.ID)
		return "", ctx.Err()
	}
}
