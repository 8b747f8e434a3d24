package forecast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/richard-senior/forecast/internal/logger"
	_ "modernc.org/sqlite"
)

// ErrRecordNotFound is returned when a primary key lookup matches nothing
var ErrRecordNotFound = errors.New("record not found")

// Persistable is implemented by structs stored through a Store. Columns come
// from struct tags: dbtype (required to persist the field), column, primary,
// index and unique (an index that also rejects duplicate values).
type Persistable interface {
	GetTableName() string
	GetPrimaryKey() map[string]any
	BeforeSave() error
}

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// Store is a small tag-driven object store over SQLite or Postgres
type Store struct {
	db      *sql.DB
	dialect string
}

// OpenStore connects to dsn. postgres:// and postgresql:// URLs use Postgres,
// anything else is treated as a SQLite path (":memory:" included).
func OpenStore(dsn string) (*Store, error) {
	dialect := dialectSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect = dialectPostgres
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == dialectSQLite {
		// one connection, otherwise every pooled connection to ":memory:"
		// sees its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}

	logger.Info("Tracker database opened", dialect)
	return &Store{db: db, dialect: dialect}, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect is "sqlite" or "postgres"
func (s *Store) Dialect() string {
	return s.dialect
}

// CreateTable creates the table and indexes for obj if they do not exist
func (s *Store) CreateTable(ctx context.Context, obj Persistable) error {
	tableName := obj.GetTableName()
	createSQL := generateCreateTableSQL(obj, tableName)
	logger.Debug("Creating table with SQL", createSQL)

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}
	for _, query := range generateIndexSQL(obj, tableName) {
		logger.Debug("Creating index with SQL", query)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			logger.Warn("Failed to create index", err)
		}
	}
	return nil
}

// Save inserts obj, or updates it when a row with its primary key exists
func (s *Store) Save(ctx context.Context, obj Persistable) error {
	if err := obj.BeforeSave(); err != nil {
		return fmt.Errorf("before save hook failed: %w", err)
	}

	exists, err := s.Exists(ctx, obj)
	if err != nil {
		return err
	}
	if exists {
		return s.update(ctx, obj)
	}
	return s.insert(ctx, obj)
}

// Exists checks whether a row with obj's primary key exists
func (s *Store) Exists(ctx context.Context, obj Persistable) (bool, error) {
	tableName := obj.GetTableName()
	whereClause, values := buildWhereClause(obj.GetPrimaryKey())
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", tableName, whereClause)

	var count int
	if err := s.db.QueryRowContext(ctx, s.rebind(query), values...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check existence in %s: %w", tableName, err)
	}
	return count > 0, nil
}

func (s *Store) insert(ctx context.Context, obj Persistable) error {
	tableName := obj.GetTableName()
	columns, values := columnValues(obj, true)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tableName, strings.Join(columns, ", "), placeholders)
	logger.Debug("Insert SQL", query)

	if _, err := s.db.ExecContext(ctx, s.rebind(query), values...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", tableName, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, obj Persistable) error {
	tableName := obj.GetTableName()
	columns, values := columnValues(obj, false)
	setPairs := make([]string, len(columns))
	for i, c := range columns {
		setPairs[i] = c + " = ?"
	}
	whereClause, whereValues := buildWhereClause(obj.GetPrimaryKey())
	values = append(values, whereValues...)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", tableName, strings.Join(setPairs, ", "), whereClause)
	logger.Debug("Update SQL", query)

	if _, err := s.db.ExecContext(ctx, s.rebind(query), values...); err != nil {
		return fmt.Errorf("failed to update %s: %w", tableName, err)
	}
	return nil
}

// FindByPrimaryKey loads the row matching primaryKey into obj
func (s *Store) FindByPrimaryKey(ctx context.Context, obj Persistable, primaryKey map[string]any) error {
	tableName := obj.GetTableName()
	columns, destinations := selectTargets(obj)
	whereClause, values := buildWhereClause(primaryKey)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(columns, ", "), tableName, whereClause)

	err := s.db.QueryRowContext(ctx, s.rebind(query), values...).Scan(destinations...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w in %s", ErrRecordNotFound, tableName)
	}
	if err != nil {
		return fmt.Errorf("failed to scan row from %s: %w", tableName, err)
	}
	return nil
}

// FindWhere returns fresh objects of obj's type for every row matching the
// where clause. Use ? placeholders whatever the dialect.
func (s *Store) FindWhere(ctx context.Context, obj Persistable, whereClause string, args ...any) ([]any, error) {
	tableName := obj.GetTableName()
	columns, _ := selectTargets(obj)
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), tableName)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	logger.Debug("FindWhere SQL", query)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableName, err)
	}
	defer rows.Close()

	objType := reflect.TypeOf(obj)
	if objType.Kind() == reflect.Ptr {
		objType = objType.Elem()
	}

	var results []any
	for rows.Next() {
		newObj := reflect.New(objType).Interface()
		_, destinations := selectTargets(newObj)
		if err := rows.Scan(destinations...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", tableName, err)
		}
		results = append(results, newObj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", tableName, err)
	}
	return results, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type persistedField struct {
	column  string
	dbType  string
	primary bool
	index   bool
	unique  bool
	pos     int
}

// persistedFields lists the exported fields carrying a dbtype tag
func persistedFields(t reflect.Type) []persistedField {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var fields []persistedField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("db") == "-" {
			continue
		}
		dbType := f.Tag.Get("dbtype")
		if dbType == "" {
			continue
		}
		column := f.Tag.Get("column")
		if column == "" {
			column = strings.ToLower(f.Name)
		}
		fields = append(fields, persistedField{
			column:  column,
			dbType:  dbType,
			primary: f.Tag.Get("primary") == "true",
			index:   f.Tag.Get("index") == "true",
			unique:  f.Tag.Get("unique") == "true",
			pos:     i,
		})
	}
	return fields
}

func generateCreateTableSQL(obj any, tableName string) string {
	var columns, primaryKeys []string
	for _, f := range persistedFields(reflect.TypeOf(obj)) {
		columns = append(columns, f.column+" "+f.dbType)
		if f.primary {
			primaryKeys = append(primaryKeys, f.column)
		}
	}
	if len(primaryKeys) > 0 {
		columns = append(columns, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKeys, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName, strings.Join(columns, ", "))
}

func generateIndexSQL(obj any, tableName string) []string {
	var queries []string
	for _, f := range persistedFields(reflect.TypeOf(obj)) {
		switch {
		case f.unique:
			queries = append(queries, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS uq_%s_%s ON %s(%s)",
				tableName, f.column, tableName, f.column))
		case f.index:
			queries = append(queries, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
				tableName, f.column, tableName, f.column))
		}
	}
	return queries
}

// columnValues returns the persisted columns and their values. Primary key
// columns are left out unless withPrimary is set.
func columnValues(obj any, withPrimary bool) ([]string, []any) {
	v := reflect.Indirect(reflect.ValueOf(obj))
	var columns []string
	var values []any
	for _, f := range persistedFields(v.Type()) {
		if f.primary && !withPrimary {
			continue
		}
		columns = append(columns, f.column)
		values = append(values, v.Field(f.pos).Interface())
	}
	return columns, values
}

// selectTargets returns the persisted columns and pointers to scan them into
func selectTargets(obj any) ([]string, []any) {
	v := reflect.Indirect(reflect.ValueOf(obj))
	var columns []string
	var destinations []any
	for _, f := range persistedFields(v.Type()) {
		columns = append(columns, f.column)
		destinations = append(destinations, v.Field(f.pos).Addr().Interface())
	}
	return columns, destinations
}

// buildWhereClause builds an AND of equality tests, ordered by column
func buildWhereClause(primaryKey map[string]any) (string, []any) {
	keys := make([]string, 0, len(primaryKey))
	for k := range primaryKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, len(keys))
	values := make([]any, len(keys))
	for i, k := range keys {
		conditions[i] = k + " = ?"
		values[i] = primaryKey[k]
	}
	return strings.Join(conditions, " AND "), values
}
