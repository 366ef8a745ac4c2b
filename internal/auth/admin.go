package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// AdminResolver decides the is_admin claim for a user.
type AdminResolver interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// AdminIDs grants the admin claim to a fixed set of user ids.
type AdminIDs map[int64]struct{}

// ParseAdminIDs parses a comma separated list of user ids.
func ParseAdminIDs(s string) (AdminIDs, error) {
	ids := AdminIDs{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing admin id %q: %w", part, err)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// IsAdmin implements AdminResolver.
func (a AdminIDs) IsAdmin(_ context.Context, userID int64) (bool, error) {
	_, ok := a[userID]
	return ok, nil
}

// AdminFunc adapts a function to AdminResolver.
type AdminFunc func(ctx context.Context, userID int64) (bool, error)

// IsAdmin implements AdminResolver.
func (f AdminFunc) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return f(ctx, userID)
}

// AnyAdmin grants the claim when any resolver grants it.
func AnyAdmin(resolvers ...AdminResolver) AdminResolver {
	return AdminFunc(func(ctx context.Context, userID int64) (bool, error) {
		for _, r := range resolvers {
			ok, err := r.IsAdmin(ctx, userID)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}
