package client

import (
	"fmt"
	"io"
	"log"
	"os"
	"regdesk/internal/config"
	"regdesk/internal/model"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and sizes the pool.
func Open(cfg config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.URL)
	case "sqlite":
		dialector = sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         newDBLogger(os.Stdout),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// newDBLogger reports slow queries and errors. Missing rows are an expected
// outcome of get-or-create lookups and stay quiet.
func newDBLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "[db] ", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate creates or updates every table the engine uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Category{},
		&model.Product{},
		&model.Voucher{},
		&model.Flag{},
		&model.Discount{},
		&model.DiscountForProduct{},
		&model.DiscountForCategory{},
		&model.Cart{},
		&model.ProductItem{},
		&model.DiscountItem{},
		&model.Invoice{},
		&model.LineItem{},
		&model.Payment{},
		&model.CreditNoteRefund{},
	)
}

func InitDBClient(cfg config.Database) *gorm.DB {
	db, err := Open(cfg)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatal(err)
	}

	return db
}
