package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/inspection_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectGuardPlugin scopes queries, updates and deletes to the request's project_id
// when the model has a project_id column.
//
// NOTE:
// - Raw SQL is not scoped. Those queries must include project_id manually.
// - Bypass is explicit via appctx.ContextKeyIsAdmin / ContextKeySkipProjectScope.
type ProjectGuardPlugin struct{}

func NewProjectGuardPlugin() *ProjectGuardPlugin { return &ProjectGuardPlugin{} }

func (p *ProjectGuardPlugin) Name() string { return "project_guard" }

func (p *ProjectGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("project_guard:query", projectGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("project_guard:row", projectGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("project_guard:update", projectGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("project_guard:delete", projectGuardCallback); err != nil {
		return err
	}
	return nil
}

func projectGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || shouldBypassProjectScope(ctx) {
		return
	}
	projectID := projectIdFromContext(ctx)
	if projectID == "" || db.Statement.Schema == nil {
		return
	}
	if db.Statement.Schema.LookUpField("project_id") == nil {
		return
	}
	// Don't duplicate an explicit project filter.
	if whereHasProjectID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "project_id"},
				Value:  projectID,
			},
		},
	})
}

func projectIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyProjectId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassProjectScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipProjectScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasProjectID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasProjectID(e) {
			return true
		}
	}
	return false
}

func exprHasProjectID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsProjectID(v.Column)
	case clause.Neq:
		return colIsProjectID(v.Column)
	case clause.IN:
		return colIsProjectID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasProjectID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasProjectID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "project_id")
	default:
		return false
	}
}

func colIsProjectID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "project_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "project_id")
	default:
		return false
	}
}
