package storage

import (
	"fmt"
	"strings"
)

// dialect captures the placeholder and matching differences between
// SQLite and PostgreSQL
type dialect struct {
	placeholder func(n int) string
	likeExpr    string // printf format taking the column and the placeholder
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	likeExpr:    `LOWER(%s) LIKE %s ESCAPE '\'`,
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	likeExpr:    `%s ILIKE %s ESCAPE '\'`,
}

// queryBuilder accumulates SQL and positional args
type queryBuilder struct {
	d    dialect
	sql  strings.Builder
	args []interface{}
}

func newQueryBuilder(d dialect, base string) *queryBuilder {
	b := &queryBuilder{d: d}
	b.sql.WriteString(base)
	return b
}

func (b *queryBuilder) write(s string) {
	b.sql.WriteString(s)
}

// arg appends a value and returns its placeholder
func (b *queryBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

// in writes "col IN (...)" for values
func (b *queryBuilder) in(col string, values []interface{}) {
	b.sql.WriteString(col)
	b.sql.WriteString(" IN (")
	for i, v := range values {
		if i > 0 {
			b.sql.WriteString(",")
		}
		b.sql.WriteString(b.arg(v))
	}
	b.sql.WriteString(")")
}

// applyFilter adds time range and category constraints on entity alias e
func (b *queryBuilder) applyFilter(filter *Filter) {
	if filter.IsEmpty() {
		return
	}
	if !filter.Start.IsZero() {
		b.write(" AND e.created_at >= " + b.arg(filter.Start))
	}
	if !filter.End.IsZero() {
		b.write(" AND e.created_at <= " + b.arg(filter.End))
	}
	if len(filter.Categories) > 0 {
		b.write(" AND e.id IN (SELECT entity_id FROM metadata_entries WHERE key = " + b.arg(KeyActivityCategory) + " AND ")
		values := make([]interface{}, len(filter.Categories))
		for i, c := range filter.Categories {
			values[i] = c
		}
		b.in("value", values)
		b.write(")")
	}
}

func (b *queryBuilder) build() (string, []interface{}) {
	return b.sql.String(), b.args
}

const entityColumns = "e.id, e.filepath, e.created_at, COALESCE(e.file_type_group, '')"

// buildTextSearch builds the keyword match query shared by both stores
func buildTextSearch(d dialect, words []string, limit int, filter *Filter) (string, []interface{}) {
	b := newQueryBuilder(d, "SELECT "+entityColumns+" FROM entities e WHERE e.id IN (SELECT m.entity_id FROM metadata_entries m WHERE ")
	keys := make([]interface{}, len(textKeys))
	for i, k := range textKeys {
		keys[i] = k
	}
	b.in("m.key", keys)
	b.write(" AND (")
	for i, w := range words {
		if i > 0 {
			b.write(" OR ")
		}
		b.write(fmt.Sprintf(d.likeExpr, "m.value", b.arg(likePattern(w))))
	}
	b.write("))")
	b.applyFilter(filter)
	b.write(" ORDER BY e.created_at DESC, e.id DESC LIMIT " + b.arg(limit))
	return b.build()
}

// buildRecent builds the newest-first entity listing shared by both stores
func buildRecent(d dialect, limit int, filter *Filter) (string, []interface{}) {
	b := newQueryBuilder(d, "SELECT "+entityColumns+" FROM entities e WHERE 1=1")
	b.applyFilter(filter)
	b.write(" ORDER BY e.created_at DESC, e.id DESC LIMIT " + b.arg(limit))
	return b.build()
}

// buildMetadata builds the batched metadata lookup shared by both stores
func buildMetadata(d dialect, ids []int64) (string, []interface{}) {
	b := newQueryBuilder(d, "SELECT entity_id, key, value FROM metadata_entries WHERE ")
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	b.in("entity_id", values)
	return b.build()
}

// likePattern escapes LIKE wildcards and wraps w for substring matching
func likePattern(w string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(w)) + "%"
}

// searchWords splits text into distinct lower-cased words
func searchWords(text string) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}
