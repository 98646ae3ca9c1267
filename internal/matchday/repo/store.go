package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

var (
	ErrNotFound       = errors.New("match not found")
	ErrImmutableScore = errors.New("virtual match score is immutable")
	ErrUnboundedQuery = errors.New("delete requires at least one filter")
)

// insertChunk limita parâmetros por INSERT (6 colunas por linha)
const insertChunk = 100

// DecodeError lista as linhas com payload ilegível. FindMatches devolve as
// partidas válidas junto com ele; as ilegíveis ficam de fora.
type DecodeError struct {
	IDs  []string
	Errs []error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%d undecodable match rows: %v", len(e.IDs), errors.Join(e.Errs...))
}

func (e *DecodeError) Unwrap() []error { return e.Errs }

// Store é o store transacional de partidas
type Store interface {
	// FindMatches pode devolver partidas junto com um *DecodeError
	FindMatches(ctx context.Context, f Filter) ([]model.Match, error)
	RoundState(ctx context.Context) (model.RoundState, error)
	LastKickoff(ctx context.Context) (time.Time, error)
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx são as escritas disponíveis dentro de uma transação
type Tx interface {
	CreateMatches(ctx context.Context, ms []model.Match) error
	UpdateMatch(ctx context.Context, id string, u Update) error
	MarkSettled(ctx context.Context, ids []string) (int64, error)
	DeleteMatches(ctx context.Context, f Filter) (int64, error)
}

// SQLStore implementa Store sobre sqlx (Postgres em produção, SQLite local)
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

// Migrate cria tabela e índices se ainda não existirem
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) FindMatches(ctx context.Context, f Filter) ([]model.Match, error) {
	return findMatches(ctx, s.db, f)
}

func (s *SQLStore) RoundState(ctx context.Context) (model.RoundState, error) {
	q := s.db.Rebind(`
		SELECT MIN(CASE WHEN settled = ? THEN round END) AS current_round,
		       MAX(round) AS frontier,
		       COUNT(*) AS total
		FROM matches
		WHERE kind = ?`)

	var row struct {
		Current  sql.NullInt64 `db:"current_round"`
		Frontier sql.NullInt64 `db:"frontier"`
		Total    int64         `db:"total"`
	}
	if err := s.db.GetContext(ctx, &row, q, false, string(model.KindVirtual)); err != nil {
		return model.RoundState{}, fmt.Errorf("round state: %w", err)
	}
	if row.Total == 0 || !row.Frontier.Valid {
		return model.RoundState{Empty: true}, nil
	}

	st := model.RoundState{Frontier: row.Frontier.Int64}
	if row.Current.Valid {
		st.Current = row.Current.Int64
	} else {
		st.Current = st.Frontier + 1
	}
	return st, nil
}

// LastKickoff retorna o kickoff mais tardio entre as partidas virtuais; zero se não houver
func (s *SQLStore) LastKickoff(ctx context.Context) (time.Time, error) {
	var ms sql.NullInt64
	q := s.db.Rebind(`SELECT MAX(scheduled_at) FROM matches WHERE kind = ?`)
	if err := s.db.GetContext(ctx, &ms, q, string(model.KindVirtual)); err != nil {
		return time.Time{}, fmt.Errorf("last kickoff: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return model.MsToTime(ms.Int64), nil
}

// WithinTx executa fn numa transação: commit se fn retornar nil, rollback caso contrário
func (s *SQLStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) CreateMatches(ctx context.Context, ms []model.Match) error {
	rows := make([]matchRow, 0, len(ms))
	for _, m := range ms {
		r, err := encode(m)
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}

	const q = `
		INSERT INTO matches (id, round, scheduled_at, settled, kind, payload)
		VALUES (:id, :round, :scheduled_at, :settled, :kind, :payload)`
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		if _, err := t.tx.NamedExecContext(ctx, q, rows[start:end]); err != nil {
			return fmt.Errorf("insert matches: %w", err)
		}
	}
	return nil
}

func (t *sqlTx) UpdateMatch(ctx context.Context, id string, u Update) error {
	var cur matchRow
	err := t.tx.GetContext(ctx, &cur, t.tx.Rebind(`SELECT id, round, scheduled_at, settled, kind, payload FROM matches WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load match %s: %w", id, err)
	}

	sets := []string{}
	args := []any{}
	if u.Settled != nil {
		if cur.Settled && !*u.Settled {
			return fmt.Errorf("match %s: settled cannot go back to false", id)
		}
		sets = append(sets, "settled = ?")
		args = append(args, *u.Settled)
	}
	if u.Payload != nil {
		m, err := cur.decode()
		if err != nil {
			return err
		}
		if m.Kind == model.KindVirtual && !sameScore(m.Payload.Score, u.Payload.Score) {
			return fmt.Errorf("%w: %s", ErrImmutableScore, id)
		}
		m.Payload = *u.Payload
		r, err := encode(m)
		if err != nil {
			return err
		}
		sets = append(sets, "payload = ?")
		args = append(args, r.Payload)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	q := t.tx.Rebind(`UPDATE matches SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("update match %s: %w", id, err)
	}
	return nil
}

func (t *sqlTx) MarkSettled(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`UPDATE matches SET settled = ? WHERE settled = ? AND id IN (?)`, true, false, ids)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("mark settled: %w", err)
	}
	return res.RowsAffected()
}

func (t *sqlTx) DeleteMatches(ctx context.Context, f Filter) (int64, error) {
	if f.empty() {
		return 0, ErrUnboundedQuery
	}
	where, args, err := buildWhere(f)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`DELETE FROM matches`+where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete matches: %w", err)
	}
	return res.RowsAffected()
}

// queryer é o que findMatches precisa; atendido por *sqlx.DB e *sqlx.Tx
type queryer interface {
	sqlx.QueryerContext
	Rebind(string) string
}

func findMatches(ctx context.Context, q queryer, f Filter) ([]model.Match, error) {
	where, args, err := buildWhere(f)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, round, scheduled_at, settled, kind, payload FROM matches` + where +
		` ORDER BY scheduled_at, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var rows []matchRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find matches: %w", err)
	}
	out := make([]model.Match, 0, len(rows))
	var bad DecodeError
	for _, r := range rows {
		m, err := r.decode()
		if err != nil {
			bad.IDs = append(bad.IDs, r.ID)
			bad.Errs = append(bad.Errs, err)
			continue
		}
		out = append(out, m)
	}
	if len(bad.IDs) > 0 {
		return out, &bad
	}
	return out, nil
}

// buildWhere monta a cláusula com placeholders "?"; o chamador faz Rebind
func buildWhere(f Filter) (string, []any, error) {
	var conds []string
	var args []any

	if len(f.IDs) > 0 {
		c, a, err := sqlx.In("id IN (?)", f.IDs)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, c)
		args = append(args, a...)
	}
	if f.Settled != nil {
		conds = append(conds, "settled = ?")
		args = append(args, *f.Settled)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Round != nil {
		conds = append(conds, "round = ?")
		args = append(args, *f.Round)
	}
	if !f.ScheduledBefore.IsZero() {
		conds = append(conds, "scheduled_at <= ?")
		args = append(args, f.ScheduledBefore.UnixMilli())
	}
	if !f.ScheduledAfter.IsZero() {
		conds = append(conds, "scheduled_at >= ?")
		args = append(args, f.ScheduledAfter.UnixMilli())
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func sameScore(a, b *model.Score) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
