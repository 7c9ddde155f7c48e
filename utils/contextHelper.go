package utils

import (
	"context"

	"github.com/mmdatafocus/inspection_backend/appctx"
)

var (
	ContextKeyProjectId     = appctx.ContextKeyProjectId
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeyIsAdmin          = appctx.ContextKeyIsAdmin
	ContextKeySkipProjectScope = appctx.ContextKeySkipProjectScope
)

func GetProjectIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyProjectId)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetProjectIdInContext(ctx context.Context, projectId string) context.Context {
	return appctx.Set(ctx, ContextKeyProjectId, projectId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetSkipProjectScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipProjectScope, skip)
}

// ActorFromContext names who performed a change; "System" when no user is set.
func ActorFromContext(ctx context.Context) string {
	if name, ok := GetUserNameFromContext(ctx); ok && name != "" {
		return name
	}
	return "System"
}
