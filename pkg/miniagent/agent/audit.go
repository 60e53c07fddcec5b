// Package agent – audit.go provides a SQLite-backed audit trail of tool
// executions. Records go to the audit_log table in the agent database and
// entries older than 30 days are pruned in the background on startup.
package agent

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tool TEXT NOT NULL,
	session_key TEXT NOT NULL,
	run_id TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	args_summary TEXT,
	result_summary TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_log_session ON audit_log(session_key);
`

// auditSummaryMax truncates stored arg/result summaries.
const auditSummaryMax = 500

// auditRetention is how long audit entries are kept.
const auditRetention = 30 * 24 * time.Hour

// OpenAuditDB opens (creating if needed) the agent database and ensures the
// audit schema exists. WAL keeps concurrent appends from the loop and reads
// from the CLI from blocking each other.
func OpenAuditDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return db, nil
}

// AuditLogger writes tool execution records to the audit_log table.
type AuditLogger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditLogger creates the logger and kicks off background pruning.
func NewAuditLogger(db *sql.DB, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AuditLogger{db: db, logger: logger.With("component", "audit")}
	go a.autoPrune()
	return a
}

// Log records one tool execution. Failures are logged, never propagated:
// the audit trail must not interfere with the run.
func (a *AuditLogger) Log(tool, sessionKey, runID string, allowed bool, argsSummary, resultSummary string) {
	allowedInt := 0
	if allowed {
		allowedInt = 1
	}
	if len(argsSummary) > auditSummaryMax {
		argsSummary = argsSummary[:auditSummaryMax] + "...[truncated]"
	}
	if len(resultSummary) > auditSummaryMax {
		resultSummary = resultSummary[:auditSummaryMax] + "...[truncated]"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := a.db.Exec(`
		INSERT INTO audit_log (tool, session_key, run_id, allowed, args_summary, result_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tool, sessionKey, runID, allowedInt, argsSummary, resultSummary, now,
	)
	if err != nil {
		a.logger.Warn("failed to write audit log", "tool", tool, "err", err)
	}
}

// autoPrune deletes entries older than the retention window.
func (a *AuditLogger) autoPrune() {
	cutoff := time.Now().Add(-auditRetention).UTC().Format(time.RFC3339)
	result, err := a.db.Exec("DELETE FROM audit_log WHERE created_at < ?", cutoff)
	if err != nil {
		a.logger.Warn("audit log prune failed", "err", err)
		return
	}
	if n, _ := result.RowsAffected(); n > 0 {
		a.logger.Info("audit log pruned", "removed", n)
	}
}

// Count returns the total number of audit entries.
func (a *AuditLogger) Count() int {
	var count int
	_ = a.db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&count)
	return count
}

// Recent returns the last n entries formatted for display, newest first.
func (a *AuditLogger) Recent(n int) []string {
	rows, err := a.db.Query(`
		SELECT tool, session_key, run_id, allowed, args_summary, result_summary, created_at
		FROM audit_log
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var (
			tool, sessionKey, runID, argsSummary, resultSummary, createdAt string
			allowed                                                        int
		)
		if err := rows.Scan(&tool, &sessionKey, &runID, &allowed, &argsSummary, &resultSummary, &createdAt); err != nil {
			continue
		}
		status := "BLOCKED"
		if allowed != 0 {
			status = "OK"
		}
		entries = append(entries, fmt.Sprintf("[%s] tool=%s session=%s run=%s %s args=%s result=%s",
			createdAt, tool, sessionKey, runID, status, argsSummary, resultSummary))
	}
	return entries
}
