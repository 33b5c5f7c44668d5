package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const companyID int64 = 1

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		fmt.Println("→ Seeding chart of accounts...")
		if err := seedAccounts(ctx, tx, cfg.AccountCodes()); err != nil {
			return fmt.Errorf("seed accounts: %w", err)
		}
		fmt.Println("→ Seeding accounting period...")
		if err := seedPeriod(ctx, tx, time.Now().UTC()); err != nil {
			return fmt.Errorf("seed period: %w", err)
		}
		fmt.Println("→ Seeding products...")
		if err := seedProducts(ctx, tx); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedAccounts(ctx context.Context, tx pgx.Tx, codes integration.AccountCodes) error {
	accounts := []struct {
		code, name, kind, normal string
	}{
		{codes.Cash, "Cash and Bank", "ASSET", "DEBIT"},
		{codes.AR, "Accounts Receivable", "ASSET", "DEBIT"},
		{codes.Inventory, "Inventory", "ASSET", "DEBIT"},
		{codes.InputVAT, "Input VAT", "ASSET", "DEBIT"},
		{codes.AP, "Accounts Payable", "LIABILITY", "CREDIT"},
		{codes.OutputVAT, "Output VAT", "LIABILITY", "CREDIT"},
		{codes.Revenue, "Sales Revenue", "REVENUE", "CREDIT"},
		{codes.COGS, "Cost of Goods Sold", "EXPENSE", "DEBIT"},
		{codes.Expense, "Operating Expense", "EXPENSE", "DEBIT"},
	}
	for _, a := range accounts {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chart_of_accounts (company_id, code, name, type, normal_balance)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (company_id, code) DO NOTHING`, companyID, a.code, a.name, a.kind, a.normal); err != nil {
			return err
		}
	}
	return nil
}

func seedPeriod(ctx context.Context, tx pgx.Tx, now time.Time) error {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	_, err := tx.Exec(ctx, `
		INSERT INTO accounting_periods (company_id, year, month, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, 'OPEN')
		ON CONFLICT (company_id, year, month) DO NOTHING`, companyID, start.Year(), int(start.Month()), start, end)
	return err
}

func seedProducts(ctx context.Context, tx pgx.Tx) error {
	products := []struct {
		sku, name, kind string
	}{
		{"SKU-001", "Widget", "STOCK"},
		{"SKU-002", "Gadget", "STOCK"},
		{"SVC-001", "Installation", "SERVICE"},
	}
	for _, p := range products {
		if _, err := tx.Exec(ctx, `
			INSERT INTO products (company_id, sku, name, product_type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (company_id, sku) DO NOTHING`, companyID, p.sku, p.name, p.kind); err != nil {
			return err
		}
	}
	return nil
}
