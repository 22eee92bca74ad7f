package search

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PgSearch implements Searcher with ILIKE matching in PostgreSQL. It is the
// fallback while Meilisearch is unavailable.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Search runs a UNION ALL over nominations and contact messages, newest first.
func (p *PgSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{likePattern(text)}
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultNomination {
		where := `(n.full_name ILIKE $1 ESCAPE '\' OR n.email ILIKE $1 ESCAPE '\' OR n.phone ILIKE $1 ESCAPE '\'
				OR EXISTS (SELECT 1 FROM jsonb_each_text(n.details) d WHERE d.value ILIKE $1 ESCAPE '\'))`
		if q.FilterKind != "" {
			args = append(args, q.FilterKind)
			where += " AND n.kind = $" + strconv.Itoa(len(args))
		}
		subQueries = append(subQueries, `
			SELECT 'nomination'::text AS type, n.id, n.kind, n.full_name AS title, n.email AS snippet, n.created_at
			FROM nominations n
			WHERE `+where)
	}

	if (q.FilterType == "" || q.FilterType == ResultContact) && q.FilterKind == "" {
		subQueries = append(subQueries, `
			SELECT 'contact'::text AS type, c.id, ''::text AS kind, c.full_name AS title, LEFT(c.message, 160) AS snippet, c.created_at
			FROM contact_messages c
			WHERE (c.full_name ILIKE $1 ESCAPE '\' OR c.email ILIKE $1 ESCAPE '\' OR c.message ILIKE $1 ESCAPE '\')`)
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, kind, title, snippet
		FROM (%s) sub
		ORDER BY created_at DESC, id DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgsearch count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgsearch query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Kind, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgsearch scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record for a full reindex.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]NominationRecord, []ContactRecord, error) {
	nomRows, err := p.db.QueryContext(ctx, `
		SELECT n.id, n.kind, n.full_name, n.email, n.phone, n.approved,
			COALESCE((SELECT string_agg(d.value, ' ' ORDER BY d.key) FROM jsonb_each_text(n.details) d), '')
		FROM nominations n
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load nominations: %w", err)
	}
	defer nomRows.Close()

	nominations := make([]NominationRecord, 0)
	for nomRows.Next() {
		var r NominationRecord
		if err := nomRows.Scan(&r.ID, &r.Kind, &r.FullName, &r.Email, &r.Phone, &r.Approved, &r.Details); err != nil {
			return nil, nil, fmt.Errorf("scan nomination: %w", err)
		}
		nominations = append(nominations, r)
	}
	if err := nomRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nominations: %w", err)
	}

	contactRows, err := p.db.QueryContext(ctx, `SELECT id, full_name, email, message, resolved FROM contact_messages`)
	if err != nil {
		return nil, nil, fmt.Errorf("load contact messages: %w", err)
	}
	defer contactRows.Close()

	contacts := make([]ContactRecord, 0)
	for contactRows.Next() {
		var r ContactRecord
		if err := contactRows.Scan(&r.ID, &r.FullName, &r.Email, &r.Message, &r.Resolved); err != nil {
			return nil, nil, fmt.Errorf("scan contact message: %w", err)
		}
		contacts = append(contacts, r)
	}
	if err := contactRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate contact messages: %w", err)
	}

	return nominations, contacts, nil
}

// JoinDetails flattens a details map into one searchable string, ordered by key.
func JoinDetails(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(details[k]); v != "" {
			values = append(values, v)
		}
	}
	return strings.Join(values, " ")
}

func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(term) + "%"
}
