package db

import (
	"context"
	"embed"
	"fmt"
	"strings"
)

//go:embed sql/*.sql
var migrationFS embed.FS

// autoMigrate creates the schema, lets gorm shape the tables, then applies
// constraints and indexes that gorm tags cannot express.
func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if err := p.runMigrationScript(ctx, "sql/pre_automigrate.sql"); err != nil {
		return err
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	return p.runMigrationScript(ctx, "sql/post_automigrate.sql")
}

func (p *Pool) runMigrationScript(ctx context.Context, name string) error {
	body, err := migrationFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	return nil
}
