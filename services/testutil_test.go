package services

import (
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mdverse-hand/models"
)

// openTestDB öffnet eine In-Memory-SQLite-Datenbank mit migriertem Schema.
// MaxOpenConns(1) hält alle Queries auf derselben Memory-Instanz.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.DataSource{}, &models.Author{}, &models.Keyword{},
		&models.Dataset{}, &models.FileType{}, &models.File{},
		&models.Thermostat{}, &models.Barostat{}, &models.Integrator{},
		&models.TopologyFile{}, &models.ParameterFile{}, &models.TrajectoryFile{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
