package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registra o driver como "sqlite", nome que o sqlx não conhece por padrão
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

func ConnectPostgres(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// ConnectSQLite abre a conexão de escrita do banco local (ou ":memory:" nos testes).
// SQLite é single-writer: uma única conexão evita "database is locked".
// Em arquivo usa WAL, para que ConnectSQLiteReader leia sem esperar a transação aberta.
func ConnectSQLite(path string) (*sqlx.DB, error) {
	dsn := path
	if !inMemory(path) {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// ConnectSQLiteReader abre um pool somente leitura sobre o mesmo arquivo.
// Com WAL os leitores veem o último commit e não disputam a conexão do writer.
func ConnectSQLiteReader(path string) (*sqlx.DB, error) {
	if inMemory(path) {
		return nil, fmt.Errorf("sqlite reader needs a database file, got %q", path)
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite reader %q: %w", path, err)
	}
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite reader: %w", err)
	}

	return db, nil
}

// Connect escolhe o driver conforme DB_DRIVER
func Connect(driver, postgresDSN, sqlitePath string) (*sqlx.DB, error) {
	switch driver {
	case "sqlite":
		return ConnectSQLite(sqlitePath)
	case "postgres", "":
		return ConnectPostgres(postgresDSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// ConnectReader devolve o pool do caminho de leitura. Postgres já tem um pool
// com várias conexões, então reaproveita o de escrita.
func ConnectReader(driver, sqlitePath string, writer *sqlx.DB) (*sqlx.DB, error) {
	if driver == "sqlite" {
		return ConnectSQLiteReader(sqlitePath)
	}
	return writer, nil
}

func inMemory(path string) bool {
	return path == "" || strings.HasPrefix(path, ":memory:") || strings.Contains(path, "mode=memory")
}
