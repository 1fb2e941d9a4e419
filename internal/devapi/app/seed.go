package app

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
	"github.com/aussiebroadwan/pmboard/pkg/cryptox"
)

// seed creates the admin account on an empty database and, when enabled,
// a small demo portfolio.
func (app *Application) seed(ctx context.Context) error {
	empty, err := app.db.Users().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	password := app.cfg.AdminPassword
	if password == "" {
		password, err = cryptox.GeneratePassword()
		if err != nil {
			return err
		}
		app.logger.Warn("generated admin password", "username", app.cfg.AdminUsername, "password", password)
	}

	admin, err := app.userService.CreateUser(ctx, app.cfg.AdminUsername, "Administrator", domain.RoleAdmin, password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	app.logger.Info("seeded admin user", "username", admin.Username)

	if !app.cfg.Seed {
		return nil
	}
	return app.seedDemo(ctx, admin.ID)
}

func (app *Application) seedDemo(ctx context.Context, userID string) error {
	create := func(resource string, data map[string]any) (string, error) {
		rec, err := app.recordService.Create(ctx, resource, userID, data)
		if err != nil {
			return "", fmt.Errorf("seed %s: %w", resource, err)
		}
		return rec.ID, nil
	}

	project, err := create("projects", map[string]any{
		"name":   "Website Relaunch",
		"status": "active",
	})
	if err != nil {
		return err
	}

	sprint, err := create("sprints", map[string]any{
		"project_id": project,
		"name":       "Sprint 1",
		"status":     "active",
	})
	if err != nil {
		return err
	}

	module, err := create("modules", map[string]any{
		"project_id": project,
		"name":       "Landing page",
	})
	if err != nil {
		return err
	}

	for _, task := range []map[string]any{
		{"title": "Wireframes", "status": "done", "estimate_hours": 6},
		{"title": "Hero section", "status": "in_progress", "estimate_hours": 10},
		{"title": "Contact form", "status": "todo", "estimate_hours": 4},
	} {
		task["project_id"] = project
		task["sprint_id"] = sprint
		task["module_id"] = module
		if _, err := create("tasks", task); err != nil {
			return err
		}
	}

	if _, err := create("notifications", map[string]any{
		"user_id": userID,
		"message": "Welcome to pmboard",
		"read":    false,
	}); err != nil {
		return err
	}

	app.logger.Info("seeded demo data", "project_id", project)
	return nil
}
