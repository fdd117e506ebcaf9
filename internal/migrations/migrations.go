package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('admin', 'cashier')),
            created_at DATETIME NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            image TEXT NOT NULL DEFAULT '',
            stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
            unit_price TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_name ON medicines (name);`,
	`CREATE TABLE IF NOT EXISTS sales (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            total_amount TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            FOREIGN KEY(user_id) REFERENCES users(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_sales_user_created ON sales (user_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS sale_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sale_id INTEGER NOT NULL,
            medicine_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            unit_price TEXT NOT NULL,
            subtotal TEXT NOT NULL,
            FOREIGN KEY(sale_id) REFERENCES sales(id) ON DELETE CASCADE,
            FOREIGN KEY(medicine_id) REFERENCES medicines(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_medicine ON sale_items (medicine_id);`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            username VARCHAR(80) NOT NULL UNIQUE,
            password VARCHAR(255) NOT NULL,
            role VARCHAR(20) NOT NULL,
            created_at DATETIME(6) NOT NULL,
            CHECK (role IN ('admin', 'cashier'))
        ) ENGINE=InnoDB;`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            image VARCHAR(255) NOT NULL DEFAULT '',
            stock BIGINT NOT NULL DEFAULT 0,
            unit_price DECIMAL(10,2) NOT NULL,
            created_at DATETIME(6) NOT NULL,
            updated_at DATETIME(6) NOT NULL,
            INDEX idx_medicines_name (name),
            CHECK (stock >= 0)
        ) ENGINE=InnoDB;`,
	`CREATE TABLE IF NOT EXISTS sales (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            user_id BIGINT NOT NULL,
            total_amount DECIMAL(10,2) NOT NULL,
            created_at DATETIME(6) NOT NULL,
            INDEX idx_sales_created_at (created_at),
            INDEX idx_sales_user_created (user_id, created_at),
            FOREIGN KEY (user_id) REFERENCES users(id)
        ) ENGINE=InnoDB;`,
	`CREATE TABLE IF NOT EXISTS sale_items (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            sale_id BIGINT NOT NULL,
            medicine_id BIGINT NOT NULL,
            quantity BIGINT NOT NULL,
            unit_price DECIMAL(10,2) NOT NULL,
            subtotal DECIMAL(10,2) NOT NULL,
            CHECK (quantity > 0),
            FOREIGN KEY (sale_id) REFERENCES sales(id) ON DELETE CASCADE,
            FOREIGN KEY (medicine_id) REFERENCES medicines(id)
        ) ENGINE=InnoDB;`,
}

// Run creates the database schema required for the POS backend.
func Run(ctx context.Context, db *sqlx.DB) error {
	var schema []string
	switch db.DriverName() {
	case "sqlite":
		schema = sqliteSchema
	case "mysql":
		schema = mysqlSchema
	default:
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
