package blog

import (
	"context"
	"errors"

	"relayloader/internal/logging"
	"relayloader/internal/middleware"
	"relayloader/internal/model"
	"relayloader/internal/nodeid"
	"relayloader/internal/planner"
	"relayloader/internal/resolver"
)

// ErrUnauthenticated is returned by viewer-scoped fields when the request
// carries no verified token.
var ErrUnauthenticated = errors.New("authentication required")

// ViewerOnly returns a before hook restricting queries on m to the row whose
// primary key is the viewer's subject.
func ViewerOnly(m *model.Model) resolver.BeforeFunc {
	return func(ctx context.Context, opts planner.QueryOptions, _ resolver.HookContext) (planner.QueryOptions, error) {
		viewer, ok := middleware.ViewerFromContext(ctx)
		if !ok {
			return opts, ErrUnauthenticated
		}
		key, err := nodeid.ParseKey(m, viewer.Subject)
		if err != nil {
			logging.FromContext(ctx).Warn("viewer subject is not a key",
				"model", m.Name,
				"subject", viewer.Subject,
				"error", err.Error(),
			)
			return opts, ErrUnauthenticated
		}
		return opts.Apply(planner.WithFilter(m.PrimaryKey, key)), nil
	}
}
