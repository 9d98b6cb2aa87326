package postgresql

import (
	"database/sql"
	"sync"

	_ "github.com/lib/pq"
	"github.com/tixgo/tix-booking/config"
	"github.com/tixgo/tix-booking/pkg/applogger"
)

var (
	once sync.Once
	db   *sql.DB
)

// GetDatabase returns the shared PostgreSQL connection pool.
func GetDatabase() *sql.DB {
	once.Do(func() {
		logger := applogger.GetLogrus()
		c := config.Get()

		var err error
		db, err = sql.Open("postgres", c.Postgres.DSN)
		if err != nil {
			logger.WithError(err).Fatal("unable to open postgresql connection")
		}

		db.SetMaxOpenConns(c.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(c.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(c.Postgres.ConnMaxLifetime)
	})

	return db
}
