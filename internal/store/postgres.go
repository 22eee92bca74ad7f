package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flames/api/internal/dashboard"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const nominationColumns = `id, kind, full_name, email, phone, linkedin, instagram, twitter, details::text, approved, media_url, version, created_at, updated_at`

const publishedColumns = `id, kind, nomination_id, full_name, email, phone, linkedin, instagram, twitter, details::text, media_url, published_at, updated_at`

const contactColumns = `id, full_name, email, message, resolved, version, created_at, updated_at`

const ticketColumns = `id, reference_id, ticket_type, full_name, email, phone, quantity, amount_paid, coupon, purchased_at, checked_in, checked_in_at, version, updated_at`

// WithinTx runs fn inside one database transaction. Any error from fn rolls
// back every write made through the Tx.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateNomination(ctx context.Context, n Nomination) (Nomination, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.UpdatedAt = n.CreatedAt
	n.Version = 1
	details, err := encodeDetails(n.Details)
	if err != nil {
		return Nomination{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nominations (id, kind, full_name, email, phone, linkedin, instagram, twitter, details, approved, media_url, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13, $13)
	`, n.ID, string(n.Kind), n.FullName, n.Email, n.Phone, n.LinkedIn, n.Instagram, n.Twitter, details, n.Approved, n.MediaURL, n.Version, n.CreatedAt)
	if err != nil {
		return Nomination{}, fmt.Errorf("insert nomination: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetNomination(ctx context.Context, kind Kind, id string) (Nomination, error) {
	return getNomination(ctx, s.db, kind, id, false)
}

// NominationExists answers the duplicate precondition for one field. Only
// email and phone are searchable.
func (s *PostgresStore) NominationExists(ctx context.Context, kind Kind, field, value string) (bool, error) {
	var column string
	switch field {
	case "email":
		column = "email"
	case "phone":
		column = "phone"
	default:
		return false, fmt.Errorf("nomination exists: unsupported field %q", field)
	}
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM nominations WHERE kind = $1 AND ` + column + ` = $2)`
	if err := s.db.QueryRowContext(ctx, query, string(kind), value).Scan(&exists); err != nil {
		return false, fmt.Errorf("check nomination %s: %w", field, err)
	}
	return exists, nil
}

func (s *PostgresStore) ListNominations(ctx context.Context, kind Kind, view dashboard.View) (dashboard.Page[Nomination], error) {
	query, args, limit, err := buildListQuery(nominationListing, view, []string{"kind = $1"}, []any{string(kind)})
	if err != nil {
		return dashboard.Page[Nomination]{}, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return dashboard.Page[Nomination]{}, fmt.Errorf("list nominations: %w", err)
	}
	defer rows.Close()

	items := make([]Nomination, 0, limit)
	for rows.Next() {
		item, err := scanNomination(rows)
		if err != nil {
			return dashboard.Page[Nomination]{}, fmt.Errorf("scan nomination: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return dashboard.Page[Nomination]{}, fmt.Errorf("iterate nominations: %w", err)
	}
	return trimPage(items, limit), nil
}

func (s *PostgresStore) ListPublished(ctx context.Context, kind Kind, limit int) ([]Published, error) {
	if limit <= 0 {
		limit = dashboard.MaxLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+publishedColumns+`
		FROM published_records
		WHERE kind = $1
		ORDER BY published_at DESC, id DESC
		LIMIT $2
	`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	defer rows.Close()

	items := make([]Published, 0)
	for rows.Next() {
		item, err := scanPublished(rows)
		if err != nil {
			return nil, fmt.Errorf("scan published: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate published: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateContact(ctx context.Context, c ContactMessage) (ContactMessage, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	c.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_messages (id, full_name, email, message, resolved, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, c.ID, c.FullName, c.Email, c.Message, c.Resolved, c.Version, c.CreatedAt)
	if err != nil {
		return ContactMessage{}, fmt.Errorf("insert contact message: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, view dashboard.View) (dashboard.Page[ContactMessage], error) {
	query, args, limit, err := buildListQuery(contactListing, view, nil, nil)
	if err != nil {
		return dashboard.Page[ContactMessage]{}, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return dashboard.Page[ContactMessage]{}, fmt.Errorf("list contact messages: %w", err)
	}
	defer rows.Close()

	items := make([]ContactMessage, 0, limit)
	for rows.Next() {
		item, err := scanContact(rows)
		if err != nil {
			return dashboard.Page[ContactMessage]{}, fmt.Errorf("scan contact message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return dashboard.Page[ContactMessage]{}, fmt.Errorf("iterate contact messages: %w", err)
	}
	return trimPage(items, limit), nil
}

func (s *PostgresStore) CreateSubscriber(ctx context.Context, sub Subscriber) error {
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (email, source, subscribed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
	`, sub.Email, sub.Source, sub.SubscribedAt)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert subscriber rows: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) ListSubscribers(ctx context.Context, view dashboard.View) (dashboard.Page[Subscriber], error) {
	query, args, limit, err := buildListQuery(subscriberListing, view, nil, nil)
	if err != nil {
		return dashboard.Page[Subscriber]{}, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return dashboard.Page[Subscriber]{}, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	items := make([]Subscriber, 0, limit)
	for rows.Next() {
		var item Subscriber
		if err := rows.Scan(&item.Email, &item.Source, &item.SubscribedAt); err != nil {
			return dashboard.Page[Subscriber]{}, fmt.Errorf("scan subscriber: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return dashboard.Page[Subscriber]{}, fmt.Errorf("iterate subscribers: %w", err)
	}
	return trimPage(items, limit), nil
}

func (s *PostgresStore) DeleteSubscriber(ctx context.Context, email string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE email = $1`, email)
	return affectedOne(result, err, "delete subscriber")
}

func (s *PostgresStore) CreateTicket(ctx context.Context, t Ticket) (Ticket, error) {
	now := time.Now().UTC()
	if t.PurchasedAt.IsZero() {
		t.PurchasedAt = now
	}
	t.UpdatedAt = now
	t.Version = 1
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, reference_id, ticket_type, full_name, email, phone, quantity, amount_paid, coupon, purchased_at, checked_in, checked_in_at, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`, t.ID, t.ReferenceID, t.TicketType, t.FullName, t.Email, t.Phone, t.Quantity, t.AmountPaid, t.Coupon,
		t.PurchasedAt, t.CheckedIn, nullTime(t.CheckedInAt), t.Version, t.UpdatedAt)
	if err != nil {
		return Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Ticket{}, fmt.Errorf("insert ticket rows: %w", err)
	}
	if affected == 0 {
		return Ticket{}, ErrAlreadyExists
	}
	return t, nil
}

func (s *PostgresStore) GetTicketByReference(ctx context.Context, ref string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE reference_id=$1`, ref)
	item, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("read ticket: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListTickets(ctx context.Context, view dashboard.View) (dashboard.Page[Ticket], error) {
	query, args, limit, err := buildListQuery(ticketListing, view, nil, nil)
	if err != nil {
		return dashboard.Page[Ticket]{}, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return dashboard.Page[Ticket]{}, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	items := make([]Ticket, 0, limit)
	for rows.Next() {
		item, err := scanTicket(rows)
		if err != nil {
			return dashboard.Page[Ticket]{}, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return dashboard.Page[Ticket]{}, fmt.Errorf("iterate tickets: %w", err)
	}
	return trimPage(items, limit), nil
}

func (s *PostgresStore) SummarizeTickets(ctx context.Context) (TicketSummary, error) {
	var sum TicketSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(amount_paid), 0), COUNT(*) FILTER (WHERE checked_in)
		FROM tickets
	`).Scan(&sum.Orders, &sum.TicketsSold, &sum.Revenue, &sum.CheckedIn)
	if err != nil {
		return TicketSummary{}, fmt.Errorf("summarize tickets: %w", err)
	}
	return sum, nil
}

func (s *PostgresStore) GetAdminByEmail(ctx context.Context, email string) (AdminUser, error) {
	return s.getAdmin(ctx, `email = $1`, email)
}

func (s *PostgresStore) GetAdminByID(ctx context.Context, id string) (AdminUser, error) {
	return s.getAdmin(ctx, `id = $1`, id)
}

func (s *PostgresStore) getAdmin(ctx context.Context, where string, arg string) (AdminUser, error) {
	var user AdminUser
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_admin, created_at
		FROM admin_users
		WHERE `+where, arg).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Admin, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AdminUser{}, ErrNotFound
	}
	if err != nil {
		return AdminUser{}, fmt.Errorf("read admin user: %w", err)
	}
	return user, nil
}

// UpsertAdmin creates the account or, when the email is already known,
// replaces its password, display name and admin claim.
func (s *PostgresStore) UpsertAdmin(ctx context.Context, user AdminUser) (AdminUser, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO admin_users (id, email, display_name, password_hash, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE
		SET display_name = EXCLUDED.display_name, password_hash = EXCLUDED.password_hash, is_admin = EXCLUDED.is_admin
		RETURNING id, created_at
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Admin).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return AdminUser{}, fmt.Errorf("upsert admin user: %w", err)
	}
	return user, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type pgTx struct {
	q queryer
}

func (t *pgTx) GetNominationForUpdate(ctx context.Context, kind Kind, id string) (Nomination, error) {
	return getNomination(ctx, t.q, kind, id, true)
}

func (t *pgTx) SaveNomination(ctx context.Context, n Nomination) (Nomination, error) {
	details, err := encodeDetails(n.Details)
	if err != nil {
		return Nomination{}, err
	}
	err = t.q.QueryRowContext(ctx, `
		UPDATE nominations
		SET full_name=$3, email=$4, phone=$5, linkedin=$6, instagram=$7, twitter=$8, details=$9::jsonb, approved=$10, media_url=$11, version=version+1, updated_at=NOW()
		WHERE kind=$1 AND id=$2
		RETURNING version, updated_at
	`, string(n.Kind), n.ID, n.FullName, n.Email, n.Phone, n.LinkedIn, n.Instagram, n.Twitter, details, n.Approved, n.MediaURL).Scan(&n.Version, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Nomination{}, ErrNotFound
	}
	if err != nil {
		return Nomination{}, fmt.Errorf("update nomination: %w", err)
	}
	return n, nil
}

func (t *pgTx) DeleteNomination(ctx context.Context, kind Kind, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM nominations WHERE kind=$1 AND id=$2`, string(kind), id)
	return affectedOne(result, err, "delete nomination")
}

func (t *pgTx) EmailTaken(ctx context.Context, kind Kind, email, exceptID string) (bool, error) {
	var taken bool
	err := t.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM nominations WHERE kind=$1 AND email=$2 AND id<>$3)
	`, string(kind), email, exceptID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check nomination email: %w", err)
	}
	return taken, nil
}

func (t *pgTx) FindPublishedByNomination(ctx context.Context, kind Kind, nominationID string) (Published, bool, error) {
	return t.findPublished(ctx, `kind=$1 AND nomination_id=$2`, string(kind), nominationID)
}

func (t *pgTx) FindPublishedByEmail(ctx context.Context, kind Kind, email string) (Published, bool, error) {
	return t.findPublished(ctx, `kind=$1 AND email=$2`, string(kind), email)
}

func (t *pgTx) findPublished(ctx context.Context, where string, args ...any) (Published, bool, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+publishedColumns+` FROM published_records WHERE `+where+` ORDER BY id LIMIT 1 FOR UPDATE`, args...)
	item, err := scanPublished(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Published{}, false, nil
	}
	if err != nil {
		return Published{}, false, fmt.Errorf("find published record: %w", err)
	}
	return item, true, nil
}

// InsertPublished writes a new live record. A concurrent approve that already
// published the same email is folded into a refresh by the unique key.
func (t *pgTx) InsertPublished(ctx context.Context, p Published) error {
	details, err := encodeDetails(p.Details)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO published_records (id, kind, nomination_id, full_name, email, phone, linkedin, instagram, twitter, details, media_url, published_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $12)
		ON CONFLICT (kind, email) DO UPDATE
		SET nomination_id=EXCLUDED.nomination_id, full_name=EXCLUDED.full_name, phone=EXCLUDED.phone, linkedin=EXCLUDED.linkedin,
			instagram=EXCLUDED.instagram, twitter=EXCLUDED.twitter, details=EXCLUDED.details, media_url=EXCLUDED.media_url,
			published_at=EXCLUDED.published_at, updated_at=EXCLUDED.updated_at
	`, p.ID, string(p.Kind), p.NominationID, p.FullName, p.Email, p.Phone, p.LinkedIn, p.Instagram, p.Twitter, details, p.MediaURL, p.PublishedAt)
	if err != nil {
		return fmt.Errorf("insert published record: %w", err)
	}
	return nil
}

func (t *pgTx) SavePublished(ctx context.Context, p Published) error {
	details, err := encodeDetails(p.Details)
	if err != nil {
		return err
	}
	result, err := t.q.ExecContext(ctx, `
		UPDATE published_records
		SET nomination_id=$3, full_name=$4, email=$5, phone=$6, linkedin=$7, instagram=$8, twitter=$9, details=$10::jsonb, media_url=$11, published_at=$12, updated_at=NOW()
		WHERE kind=$1 AND id=$2
	`, string(p.Kind), p.ID, p.NominationID, p.FullName, p.Email, p.Phone, p.LinkedIn, p.Instagram, p.Twitter, details, p.MediaURL, p.PublishedAt)
	return affectedOne(result, err, "update published record")
}

func (t *pgTx) DeletePublished(ctx context.Context, kind Kind, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM published_records WHERE kind=$1 AND id=$2`, string(kind), id)
	return affectedOne(result, err, "delete published record")
}

func (t *pgTx) GetContactForUpdate(ctx context.Context, id string) (ContactMessage, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contact_messages WHERE id=$1 FOR UPDATE`, id)
	item, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ContactMessage{}, ErrNotFound
	}
	if err != nil {
		return ContactMessage{}, fmt.Errorf("read contact message: %w", err)
	}
	return item, nil
}

func (t *pgTx) SaveContact(ctx context.Context, c ContactMessage) (ContactMessage, error) {
	err := t.q.QueryRowContext(ctx, `
		UPDATE contact_messages
		SET full_name=$2, email=$3, message=$4, resolved=$5, version=version+1, updated_at=NOW()
		WHERE id=$1
		RETURNING version, updated_at
	`, c.ID, c.FullName, c.Email, c.Message, c.Resolved).Scan(&c.Version, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ContactMessage{}, ErrNotFound
	}
	if err != nil {
		return ContactMessage{}, fmt.Errorf("update contact message: %w", err)
	}
	return c, nil
}

func (t *pgTx) DeleteContact(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM contact_messages WHERE id=$1`, id)
	return affectedOne(result, err, "delete contact message")
}

func (t *pgTx) GetTicketForUpdate(ctx context.Context, id string) (Ticket, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id)
	item, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("read ticket: %w", err)
	}
	return item, nil
}

func (t *pgTx) SaveTicket(ctx context.Context, ticket Ticket) (Ticket, error) {
	err := t.q.QueryRowContext(ctx, `
		UPDATE tickets
		SET ticket_type=$2, full_name=$3, email=$4, phone=$5, quantity=$6, amount_paid=$7, coupon=$8,
			checked_in=$9, checked_in_at=$10, version=version+1, updated_at=NOW()
		WHERE id=$1
		RETURNING version, updated_at
	`, ticket.ID, ticket.TicketType, ticket.FullName, ticket.Email, ticket.Phone, ticket.Quantity, ticket.AmountPaid,
		ticket.Coupon, ticket.CheckedIn, nullTime(ticket.CheckedInAt)).Scan(&ticket.Version, &ticket.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("update ticket: %w", err)
	}
	return ticket, nil
}

func getNomination(ctx context.Context, q queryer, kind Kind, id string, forUpdate bool) (Nomination, error) {
	query := `SELECT ` + nominationColumns + ` FROM nominations WHERE kind=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	item, err := scanNomination(q.QueryRowContext(ctx, query, string(kind), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Nomination{}, ErrNotFound
	}
	if err != nil {
		return Nomination{}, fmt.Errorf("read nomination: %w", err)
	}
	return item, nil
}

func scanNomination(row rowScanner) (Nomination, error) {
	var item Nomination
	var kind, details string
	if err := row.Scan(
		&item.ID,
		&kind,
		&item.FullName,
		&item.Email,
		&item.Phone,
		&item.LinkedIn,
		&item.Instagram,
		&item.Twitter,
		&details,
		&item.Approved,
		&item.MediaURL,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Nomination{}, err
	}
	item.Kind = Kind(kind)
	decoded, err := decodeDetails(details)
	if err != nil {
		return Nomination{}, err
	}
	item.Details = decoded
	return item, nil
}

func scanPublished(row rowScanner) (Published, error) {
	var item Published
	var kind, details string
	if err := row.Scan(
		&item.ID,
		&kind,
		&item.NominationID,
		&item.FullName,
		&item.Email,
		&item.Phone,
		&item.LinkedIn,
		&item.Instagram,
		&item.Twitter,
		&details,
		&item.MediaURL,
		&item.PublishedAt,
		&item.UpdatedAt,
	); err != nil {
		return Published{}, err
	}
	item.Kind = Kind(kind)
	decoded, err := decodeDetails(details)
	if err != nil {
		return Published{}, err
	}
	item.Details = decoded
	return item, nil
}

func scanContact(row rowScanner) (ContactMessage, error) {
	var item ContactMessage
	err := row.Scan(&item.ID, &item.FullName, &item.Email, &item.Message, &item.Resolved, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanTicket(row rowScanner) (Ticket, error) {
	var (
		item        Ticket
		checkedInAt sql.NullTime
	)
	err := row.Scan(&item.ID, &item.ReferenceID, &item.TicketType, &item.FullName, &item.Email, &item.Phone,
		&item.Quantity, &item.AmountPaid, &item.Coupon, &item.PurchasedAt, &item.CheckedIn, &checkedInAt,
		&item.Version, &item.UpdatedAt)
	if checkedInAt.Valid {
		item.CheckedInAt = checkedInAt.Time
	}
	return item, err
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func encodeDetails(details map[string]string) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("encode details: %w", err)
	}
	return string(raw), nil
}

func decodeDetails(raw string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	return out, nil
}

func affectedOne(result sql.Result, err error, action string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", action, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// listing describes how a dashboard view maps onto one table.
type listing struct {
	table         string
	columns       string
	createdColumn string
	idColumn      string
	flagColumn    string
	searchColumns []string
	searchDetails bool
}

var nominationListing = listing{
	table:         "nominations",
	columns:       nominationColumns,
	createdColumn: "created_at",
	idColumn:      "id",
	flagColumn:    "approved",
	searchColumns: []string{"full_name", "email"},
	searchDetails: true,
}

var contactListing = listing{
	table:         "contact_messages",
	columns:       contactColumns,
	createdColumn: "created_at",
	idColumn:      "id",
	flagColumn:    "resolved",
	searchColumns: []string{"full_name", "email", "message"},
}

var ticketListing = listing{
	table:         "tickets",
	columns:       ticketColumns,
	createdColumn: "purchased_at",
	idColumn:      "id",
	flagColumn:    "checked_in",
	searchColumns: []string{"full_name", "email", "reference_id"},
}

var subscriberListing = listing{
	table:         "subscribers",
	columns:       "email, source, subscribed_at",
	createdColumn: "subscribed_at",
	idColumn:      "email",
	searchColumns: []string{"email", "source"},
}

// buildListQuery renders a keyset-paginated query for view. It asks for one
// row past the limit so the caller can tell whether another page follows.
func buildListQuery(l listing, view dashboard.View, where []string, args []any) (string, []any, int, error) {
	v := view.Normalize()
	where = append([]string(nil), where...)
	args = append([]any(nil), args...)
	next := func(value any) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}

	if want, constrained := v.WantFlag(); constrained && l.flagColumn != "" {
		where = append(where, l.flagColumn+" = "+next(want))
	}
	if v.Search != "" {
		pattern := next(likePattern(v.Search))
		parts := make([]string, 0, len(l.searchColumns)+1)
		for _, column := range l.searchColumns {
			parts = append(parts, column+` ILIKE `+pattern+` ESCAPE '\'`)
		}
		if l.searchDetails {
			parts = append(parts, `EXISTS (SELECT 1 FROM jsonb_each_text(details) d WHERE d.value ILIKE `+pattern+` ESCAPE '\')`)
		}
		where = append(where, "("+strings.Join(parts, " OR ")+")")
	}
	direction, cmp := "DESC", "<"
	if v.Sort == dashboard.SortOldest {
		direction, cmp = "ASC", ">"
	}
	if v.Cursor != "" {
		after, err := dashboard.DecodeCursor(v.Cursor)
		if err != nil {
			return "", nil, 0, err
		}
		at := next(after.CreatedAt)
		id := next(after.ID)
		where = append(where, "("+l.createdColumn+", "+l.idColumn+") "+cmp+" ("+at+", "+id+")")
	}

	var b strings.Builder
	b.WriteString("SELECT " + l.columns + " FROM " + l.table)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + l.createdColumn + " " + direction + ", " + l.idColumn + " " + direction)
	b.WriteString(" LIMIT " + next(v.Limit+1))
	return b.String(), args, v.Limit, nil
}

func trimPage[T dashboard.Item](items []T, limit int) dashboard.Page[T] {
	if len(items) <= limit {
		return dashboard.Page[T]{Items: items}
	}
	items = items[:limit]
	return dashboard.Page[T]{Items: items, NextCursor: dashboard.EncodeCursor(items[len(items)-1].DashboardKey())}
}

func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(term) + "%"
}
