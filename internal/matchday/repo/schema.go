package repo

// schema é compatível com Postgres e SQLite; scheduled_at em epoch ms
var schema = []string{
	`CREATE TABLE IF NOT EXISTS matches (
		id           TEXT PRIMARY KEY,
		round        BIGINT NOT NULL,
		scheduled_at BIGINT NOT NULL,
		settled      BOOLEAN NOT NULL DEFAULT FALSE,
		kind         TEXT NOT NULL DEFAULT 'VIRTUAL',
		payload      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_pending ON matches (settled, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_round ON matches (kind, round)`,
}
