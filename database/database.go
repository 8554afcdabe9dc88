package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 只有刷新时写入一次，连接池保持很小
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	return db, nil
}

// Migrations 快照归档表结构
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS match_snapshots (
		id BIGSERIAL PRIMARY KEY,
		update_time VARCHAR(32) NOT NULL,
		last_fetch BIGINT NOT NULL,
		total INTEGER NOT NULL,
		matches JSONB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_snapshots_last_fetch ON match_snapshots(last_fetch)`,
	`CREATE INDEX IF NOT EXISTS idx_match_snapshots_created_at ON match_snapshots(created_at)`,
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	for _, migration := range Migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
