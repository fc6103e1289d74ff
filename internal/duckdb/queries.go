package duckdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// maxQueryRows caps the rows returned by ExecuteQuery.
const maxQueryRows = 1000

// dangerousKeywordPattern matches write and extension keywords at word
// boundaries so "RESET" does not match "SET".
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var b strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// journalWhere returns a WHERE clause restricting rows to opts.JournalID.
func journalWhere(opts model.QueryOpts) (string, []any) {
	if opts.JournalID != "" {
		return "WHERE journal_id = ?", []any{opts.JournalID}
	}
	return "", nil
}

// KindCounts returns record counts per kind, largest first.
func (s *Store) KindCounts(opts model.QueryOpts) ([]model.KindCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := journalWhere(opts)
	query := fmt.Sprintf(`SELECT kind, COUNT(*) AS count FROM records %s GROUP BY kind ORDER BY count DESC, kind ASC`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.KindCount
	for rows.Next() {
		var kc model.KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			log.Printf("duckdb scan error (KindCounts): %v", err)
			continue
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}

// TotalRecordCount returns the number of stored records.
func (s *Store) TotalRecordCount(opts model.QueryOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := journalWhere(opts)
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records `+where, args...).Scan(&count)
	return count, err
}

// RecordsFiltered returns stored records in journal and line order. The
// time bounds are inclusive and apply to the record's block time; records
// without one are excluded once a bound is set.
func (s *Store) RecordsFiltered(f model.RecordFilter) ([]model.RecordRow, error) {
	var conds []string
	var args []any

	if f.JournalID != "" {
		conds = append(conds, "journal_id = ?")
		args = append(args, f.JournalID)
	}
	if len(f.Kinds) > 0 {
		conds = append(conds, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, strings.ToUpper(f.Severity))
	}
	if len(f.Blocks) > 0 {
		conds = append(conds, "block_no IN ("+placeholders(len(f.Blocks))+")")
		for _, b := range f.Blocks {
			args = append(args, b)
		}
	}
	if !f.From.IsZero() {
		conds = append(conds, "block_time >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		conds = append(conds, "block_time <= ?")
		args = append(args, f.To)
	}
	if f.MatchPattern != "" {
		if _, err := regexp.Compile(f.MatchPattern); err != nil {
			return nil, fmt.Errorf("duckdb: match pattern: %w", err)
		}
		conds = append(conds, "regexp_matches(raw, ?)")
		args = append(args, f.MatchPattern)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = model.DefaultRecordLimit
	}

	query := `SELECT journal_id, line_no, block_no, kind, severity, raw, block_time, CAST(fields AS VARCHAR) FROM records`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY journal_id, line_no LIMIT ?"
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RecordRow
	for rows.Next() {
		var r model.RecordRow
		var blockTime sql.NullTime
		var fields sql.NullString
		if err := rows.Scan(&r.JournalID, &r.Line, &r.Block, &r.Kind, &r.Severity, &r.Raw, &blockTime, &fields); err != nil {
			log.Printf("duckdb scan error (RecordsFiltered): %v", err)
			continue
		}
		if blockTime.Valid {
			r.BlockTime = blockTime.Time
		}
		if fields.Valid && fields.String != "" {
			r.Fields = json.RawMessage(fields.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ExecuteQuery runs a read-only SQL query and returns up to 1000 rows as
// maps. Only SELECT and WITH queries are accepted.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)

	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() && len(results) < maxQueryRows {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			log.Printf("duckdb scan error (ExecuteQuery): %v", err)
			continue
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// GetSchemaDescription describes the queryable tables.
func (s *Store) GetSchemaDescription() string {
	return `Table 'journals': id (VARCHAR), source (VARCHAR), journal_path (VARCHAR), ` +
		`product_version (INTEGER), product_release (VARCHAR), build (VARCHAR), branch (VARCHAR), ` +
		`username (VARCHAR), machine_name (VARCHAR), os_version (VARCHAR), session_id (VARCHAR), ` +
		`block_count (INTEGER), record_count (INTEGER), session_seconds (DOUBLE), ` +
		`terminated_cleanly (BOOLEAN), has_api_errors (BOOLEAN), has_exceptions (BOOLEAN), ` +
		`processing_ms (BIGINT), decoded_at (TIMESTAMP). ` +
		`Table 'records': journal_id (VARCHAR), line_no (INTEGER), block_no (INTEGER), ` +
		`kind (VARCHAR: ` + strings.Join(kindNames(), "/") + `), ` +
		`severity (VARCHAR: INFO/WARN/ERROR), raw (VARCHAR), block_time (TIMESTAMP), fields (JSON). ` +
		`View 'journal_kind_counts': journal_id, kind, records.`
}

func kindNames() []string {
	kinds := model.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

// TableRowCounts returns the row count of each known table.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowed := []string{"journals", "records"}
	counts := make(map[string]int64, len(allowed))
	for _, table := range allowed {
		var count int64
		// Table names come from the fixed list above.
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}
