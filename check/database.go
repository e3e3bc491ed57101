package check

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Database pings the connection pool and runs a trivial query.
func Database(db *gorm.DB) Check {
	return Func(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("unable to access database pool: %w", err)
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("unable to connect to database: %w", err)
		}

		var one int
		if err := db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
			return fmt.Errorf("unable to query database: %w", err)
		}

		return nil
	})
}
