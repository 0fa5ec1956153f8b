package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/revlens/internal/analytics/cohort"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	billingeventdomain "github.com/smallbiznis/revlens/internal/billingevent/domain"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres schema. Every table the sync
// and the analytics engines write to is created on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type.
func Models() []any {
	return []any{
		&connectiondomain.Connection{},
		&customerdomain.Customer{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Revision{},
		&billingeventdomain.BillingEvent{},
		&mrr.Snapshot{},
		&cohort.Snapshot{},
	}
}

// AutoMigrate builds the schema from the models for databases the sql
// migrations do not target, such as sqlite in local runs and tests.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
