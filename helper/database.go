package helper

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the Postgres connection settings, read from
// the environment.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Schema   string
}

// NewDatabaseConfiguration reads the database configuration from the
// KNOWLEDGE_DB_* environment variables.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	config := &DatabaseConfiguration{
		Host:     os.Getenv("KNOWLEDGE_DB_HOST"),
		Port:     os.Getenv("KNOWLEDGE_DB_PORT"),
		User:     os.Getenv("KNOWLEDGE_DB_USER"),
		Password: os.Getenv("KNOWLEDGE_DB_PASSWORD"),
		Name:     os.Getenv("KNOWLEDGE_DB_DATABASE"),
		Schema:   os.Getenv("KNOWLEDGE_DB_SCHEMA"),
	}
	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.Host == "" || config.Port == "" || config.User == "" || config.Name == "" {
		return nil, fmt.Errorf("incomplete database configuration, need KNOWLEDGE_DB_HOST, KNOWLEDGE_DB_PORT, KNOWLEDGE_DB_USER and KNOWLEDGE_DB_DATABASE")
	}
	return config, nil
}

// ConnectionString builds the lib/pq connection string.
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s search_path=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name, c.Schema,
	)
}

// Database wraps a sql.DB connection with its logger.
type Database struct {
	Instance *sql.DB
	Logger   *slog.Logger
	Name     string
}

// NewDatabase opens a connection to Postgres and pings it. It panics when
// the database is unreachable, matching handler initialization semantics.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		log.Panicf("error opening database connection: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Panicf("error pinging database: %v", err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Instance: db,
		Logger:   logger,
		Name:     name,
	}
}
