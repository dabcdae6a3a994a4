package main

import (
	"errors"
	"flag"

	"course_checkout/internal/pkg/config"
	"course_checkout/pkg/database"
	"course_checkout/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	action := flag.String("action", "up", "up | down | version")
	steps := flag.Int("steps", 1, "number of migrations to roll back with -action=down")
	source := flag.String("source", "file://migrations", "migration source url")
	forceDirty := flag.Bool("force-dirty", false, "force the dirty version then retry up")
	flag.Parse()

	config.LoadConfig()
	if err := logger.Init(config.GlobalConfig.Log.Level, "console"); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Log

	m, err := migrate.New(*source, database.MigrateURL(config.GlobalConfig.Database))
	if err != nil {
		log.Fatal("open migrations", zap.Error(err))
	}
	defer m.Close()

	switch *action {
	case "up":
		err = up(m, *forceDirty, log)
	case "down":
		err = m.Steps(-*steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatal("read version", zap.Error(verr))
		}
		log.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return
	default:
		log.Fatal("unknown action", zap.String("action", *action))
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("migration failed", zap.String("action", *action), zap.Error(err))
	}
	log.Info("migration successful", zap.String("action", *action))
}

// up 数据库处于 dirty 状态时，只有显式指定 -force-dirty 才强制修复并重试
func up(m *migrate.Migrate, forceDirty bool, log *zap.Logger) error {
	err := m.Up()
	var dirty migrate.ErrDirty
	if !errors.As(err, &dirty) {
		return err
	}
	if !forceDirty {
		return err
	}

	log.Warn("database is dirty, forcing version", zap.Int("version", dirty.Version))
	if err := m.Force(dirty.Version); err != nil {
		return err
	}
	return m.Up()
}
