package common

import "context"

type ctxKey string

const (
	staffIDKey   ctxKey = "auth/staff-id"
	staffRoleKey ctxKey = "auth/staff-role"
)

// WithStaff stores the authenticated staff identity on the provided context.
func WithStaff(ctx context.Context, id int64, role string) context.Context {
	ctx = context.WithValue(ctx, staffIDKey, id)
	return context.WithValue(ctx, staffRoleKey, role)
}

// StaffID extracts the authenticated staff identifier from the context if present.
func StaffID(ctx context.Context) (int64, bool) {
	v := ctx.Value(staffIDKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// StaffRole extracts the authenticated staff role from the context if present.
func StaffRole(ctx context.Context) (string, bool) {
	v := ctx.Value(staffRoleKey)
	if v == nil {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
