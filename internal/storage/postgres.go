package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// Schema creates the tables used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS deals (
	id                      UUID PRIMARY KEY,
	owner_id                TEXT NOT NULL,
	brand_name              TEXT NOT NULL,
	platform                TEXT NOT NULL,
	contact                 TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL,
	deal_value              DOUBLE PRECISION,
	last_contacted_at       TIMESTAMPTZ NOT NULL,
	next_follow_up_at       TIMESTAMPTZ NOT NULL,
	follow_up_interval_days INTEGER NOT NULL,
	follow_up_count         INTEGER NOT NULL DEFAULT 0,
	notes                   TEXT NOT NULL DEFAULT '',
	rate_check              JSONB,
	brief_analysis          JSONB,
	created_at              TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS deals_owner_idx ON deals (owner_id);

CREATE TABLE IF NOT EXISTS timeline_events (
	seq         BIGSERIAL PRIMARY KEY,
	id          UUID NOT NULL UNIQUE,
	deal_id     UUID NOT NULL REFERENCES deals (id) ON DELETE CASCADE,
	type        TEXT NOT NULL,
	date        TIMESTAMPTZ NOT NULL,
	description TEXT NOT NULL,
	metadata    JSONB
);
CREATE INDEX IF NOT EXISTS timeline_events_deal_idx ON timeline_events (deal_id, seq);
`

const dealColumns = "id, owner_id, brand_name, platform, contact, status, deal_value, last_contacted_at, next_follow_up_at, " +
	"follow_up_interval_days, follow_up_count, notes, rate_check, brief_analysis, created_at, updated_at"

const eventColumns = "deal_id, id, type, date, description, metadata"

// PostgresStore keeps deals in one table and their timelines in another,
// ordered by insertion sequence.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres opens and pings dsn.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewPostgresFromDB(db), nil
}

func NewPostgresFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeal(row rowScanner) (models.Deal, error) {
	var (
		d                        models.Deal
		platform, status         string
		value                    sql.NullFloat64
		rateCheck, briefAnalysis []byte
	)
	err := row.Scan(&d.ID, &d.OwnerID, &d.BrandName, &platform, &d.Contact, &status, &value,
		&d.LastContactedAt, &d.NextFollowUpAt, &d.FollowUpIntervalDays, &d.FollowUpCount, &d.Notes,
		&rateCheck, &briefAnalysis, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return models.Deal{}, err
	}
	d.Platform = models.Platform(platform)
	d.Status = models.Status(status)
	if value.Valid {
		v := value.Float64
		d.DealValue = &v
	}
	if len(rateCheck) > 0 {
		d.RateCheck = &models.RateCheckResult{}
		if err := json.Unmarshal(rateCheck, d.RateCheck); err != nil {
			return models.Deal{}, fmt.Errorf("failed to decode rate check of %s: %w", d.ID, err)
		}
	}
	if len(briefAnalysis) > 0 {
		d.BriefAnalysis = &models.BriefAnalysisResult{}
		if err := json.Unmarshal(briefAnalysis, d.BriefAnalysis); err != nil {
			return models.Deal{}, fmt.Errorf("failed to decode brief analysis of %s: %w", d.ID, err)
		}
	}
	d.Timeline = []models.TimelineEvent{}
	return d, nil
}

func scanEvent(row rowScanner) (string, models.TimelineEvent, error) {
	var (
		dealID, eventType string
		metadata          []byte
		ev                models.TimelineEvent
	)
	if err := row.Scan(&dealID, &ev.ID, &eventType, &ev.Date, &ev.Description, &metadata); err != nil {
		return "", models.TimelineEvent{}, err
	}
	ev.Type = models.EventType(eventType)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return "", models.TimelineEvent{}, fmt.Errorf("failed to decode metadata of event %s: %w", ev.ID, err)
		}
	}
	return dealID, ev, nil
}

// ListDeals returns every deal of ownerID, newest first, with timelines.
func (s *PostgresStore) ListDeals(ctx context.Context, ownerID string) ([]models.Deal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+dealColumns+" FROM deals WHERE owner_id = $1 ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals of %s: %w", ownerID, err)
	}
	defer rows.Close()

	var (
		deals []models.Deal
		ids   []string
	)
	index := make(map[string]int)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		index[d.ID] = len(deals)
		ids = append(ids, d.ID)
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deals: %w", err)
	}
	if len(deals) == 0 {
		return deals, nil
	}

	evRows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM timeline_events WHERE deal_id = ANY($1) ORDER BY seq", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load timelines: %w", err)
	}
	defer evRows.Close()

	for evRows.Next() {
		dealID, ev, err := scanEvent(evRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		if i, ok := index[dealID]; ok {
			deals[i].Timeline = append(deals[i].Timeline, ev)
		}
	}
	if err := evRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timeline events: %w", err)
	}
	return deals, nil
}

// GetDeal returns models.ErrDealNotFound for unknown or malformed ids.
func (s *PostgresStore) GetDeal(ctx context.Context, id string) (models.Deal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Deal{}, models.ErrDealNotFound
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+dealColumns+" FROM deals WHERE id = $1", id)
	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Deal{}, models.ErrDealNotFound
		}
		return models.Deal{}, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM timeline_events WHERE deal_id = $1 ORDER BY seq", id)
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to load timeline of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		_, ev, err := scanEvent(rows)
		if err != nil {
			return models.Deal{}, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		d.Timeline = append(d.Timeline, ev)
	}
	if err := rows.Err(); err != nil {
		return models.Deal{}, fmt.Errorf("failed to iterate timeline events: %w", err)
	}
	return d, nil
}

// CreateDeal inserts deal with a fresh UUID unless deal.ID is already one.
// Any events in deal.Timeline are stored in the same transaction.
func (s *PostgresStore) CreateDeal(ctx context.Context, ownerID string, deal models.Deal) (models.Deal, error) {
	if deal.ID == "" {
		deal.ID = uuid.NewString()
	} else if _, err := uuid.Parse(deal.ID); err != nil {
		return models.Deal{}, fmt.Errorf("%w: deal id %q is not a UUID", models.ErrValidation, deal.ID)
	}
	prepareForCreate(&deal, ownerID, s.now())

	rateCheck, err := nullableJSON(deal.RateCheck)
	if err != nil {
		return models.Deal{}, err
	}
	briefAnalysis, err := nullableJSON(deal.BriefAnalysis)
	if err != nil {
		return models.Deal{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO deals ("+dealColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)",
		deal.ID, deal.OwnerID, deal.BrandName, string(deal.Platform), deal.Contact, string(deal.Status), nullableFloat(deal.DealValue),
		deal.LastContactedAt.UTC(), deal.NextFollowUpAt.UTC(), deal.FollowUpIntervalDays, deal.FollowUpCount, deal.Notes,
		rateCheck, briefAnalysis, deal.CreatedAt, deal.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Deal{}, models.ErrDealExists
		}
		return models.Deal{}, fmt.Errorf("failed to create deal: %w", err)
	}

	for _, ev := range deal.Timeline {
		if err := insertEvent(ctx, tx, deal.ID, ev); err != nil {
			return models.Deal{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Deal{}, fmt.Errorf("failed to commit deal: %w", err)
	}
	return deal, nil
}

// UpdateDeal writes only the fields set in u.
func (s *PostgresStore) UpdateDeal(ctx context.Context, id string, u models.DealUpdate) error {
	if u.Empty() {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrDealNotFound
	}

	query, args, err := postgresUpdate(id, u, s.now())
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update deal %s: %w", id, err)
	}
	return requireRow(res)
}

// AppendTimelineEvent inserts event after every existing event of dealID.
func (s *PostgresStore) AppendTimelineEvent(ctx context.Context, dealID string, event models.TimelineEvent) (models.TimelineEvent, error) {
	if _, err := uuid.Parse(dealID); err != nil {
		return models.TimelineEvent{}, models.ErrDealNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.TimelineEvent{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE deals SET updated_at = $1 WHERE id = $2", s.now().UTC(), dealID)
	if err != nil {
		return models.TimelineEvent{}, fmt.Errorf("failed to touch deal %s: %w", dealID, err)
	}
	if err := requireRow(res); err != nil {
		return models.TimelineEvent{}, err
	}
	if err := insertEvent(ctx, tx, dealID, event); err != nil {
		return models.TimelineEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.TimelineEvent{}, fmt.Errorf("failed to commit timeline event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) DeleteDeal(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrDealNotFound
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM deals WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete deal %s: %w", id, err)
	}
	return requireRow(res)
}

func insertEvent(ctx context.Context, tx *sql.Tx, dealID string, ev models.TimelineEvent) error {
	var metadata interface{}
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode event metadata: %w", err)
		}
		metadata = b
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO timeline_events (id, deal_id, type, date, description, metadata) VALUES ($1, $2, $3, $4, $5, $6)",
		ev.ID, dealID, string(ev.Type), ev.Date.UTC(), ev.Description, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert timeline event %s: %w", ev.ID, err)
	}
	return nil
}

func postgresUpdate(id string, u models.DealUpdate, now time.Time) (string, []interface{}, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.BrandName != nil {
		set("brand_name", *u.BrandName)
	}
	if u.Platform != nil {
		set("platform", string(*u.Platform))
	}
	if u.Contact != nil {
		set("contact", *u.Contact)
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.ClearDealValue {
		set("deal_value", nil)
	} else if u.DealValue != nil {
		set("deal_value", *u.DealValue)
	}
	if u.LastContactedAt != nil {
		set("last_contacted_at", u.LastContactedAt.UTC())
	}
	if u.NextFollowUpAt != nil {
		set("next_follow_up_at", u.NextFollowUpAt.UTC())
	}
	if u.FollowUpIntervalDays != nil {
		set("follow_up_interval_days", *u.FollowUpIntervalDays)
	}
	if u.FollowUpCount != nil {
		set("follow_up_count", *u.FollowUpCount)
	}
	if u.Notes != nil {
		set("notes", *u.Notes)
	}
	if u.RateCheck != nil {
		b, err := json.Marshal(u.RateCheck)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode rate check: %w", err)
		}
		set("rate_check", b)
	}
	if u.BriefAnalysis != nil {
		b, err := json.Marshal(u.BriefAnalysis)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode brief analysis: %w", err)
		}
		set("brief_analysis", b)
	}
	set("updated_at", now.UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE deals SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return query, args, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.ErrDealNotFound
	}
	return nil
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *models.RateCheckResult:
		if t == nil {
			return nil, nil
		}
	case *models.BriefAnalysisResult:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode enrichment: %w", err)
	}
	return b, nil
}
