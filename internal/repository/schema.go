package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

const (
	tableInvoices = "invoices"
	tableCursors  = "scan_cursors"
	tableLogs     = "processing_logs"
)

// column types that differ between drivers
type ddlTypes struct {
	money, real, boolean, bigint string
}

func (s *Store) types() ddlTypes {
	if s.dialect == dialect.Postgres {
		return ddlTypes{money: "NUMERIC", real: "DOUBLE PRECISION", boolean: "BOOLEAN", bigint: "BIGINT"}
	}
	return ddlTypes{money: "TEXT", real: "REAL", boolean: "INTEGER", bigint: "INTEGER"}
}

// EnsureSchema creates the tables and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	t := s.types()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
            user_id TEXT NOT NULL,
            message_id TEXT NOT NULL,
            attachment_id TEXT NOT NULL,
            original_filename TEXT NOT NULL,
            vendor_name TEXT,
            invoice_number TEXT,
            invoice_number_norm TEXT,
            issue_date TEXT,
            due_date TEXT,
            amount ` + t.money + `,
            currency TEXT,
            tax_amount ` + t.money + `,
            confidence ` + t.real + ` NOT NULL,
            extraction_method TEXT NOT NULL,
            storage_file_id TEXT,
            storage_link TEXT,
            processed ` + t.boolean + ` NOT NULL,
            created_at ` + t.bigint + ` NOT NULL,
            updated_at ` + t.bigint + ` NOT NULL,
            PRIMARY KEY (user_id, message_id, attachment_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_user_number ON invoices(user_id, invoice_number_norm);`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_user_created ON invoices(user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS scan_cursors (
            user_id TEXT PRIMARY KEY,
            last_processed_at ` + t.bigint + ` NOT NULL,
            last_history_id ` + t.bigint + ` NOT NULL,
            is_first_scan ` + t.boolean + ` NOT NULL,
            updated_at ` + t.bigint + ` NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS processing_logs (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            trigger_type TEXT NOT NULL,
            status TEXT NOT NULL,
            emails_scanned INTEGER NOT NULL,
            attachments_processed INTEGER NOT NULL,
            invoices_found INTEGER NOT NULL,
            duplicates_skipped INTEGER NOT NULL,
            errors TEXT NOT NULL,
            window_start ` + t.bigint + ` NOT NULL,
            started_at ` + t.bigint + ` NOT NULL,
            finished_at ` + t.bigint + ` NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_processing_logs_user_started ON processing_logs(user_id, started_at);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
