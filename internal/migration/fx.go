package migration

import (
	"github.com/smallbiznis/revlens/internal/config"
	"github.com/smallbiznis/revlens/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != db.TypePostgres {
			log.Warn("schema created from models, sql migrations only run on postgres",
				zap.String("db_type", cfg.DBType),
			)
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
