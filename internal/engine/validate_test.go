package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSQLAccepts(t *testing.T) {
	queries := []string{
		"SELECT * FROM data",
		"select region, sum(amount) from data group by region",
		"SELECT * FROM data WHERE region = '서울' LIMIT 10",
		"WITH monthly AS (SELECT date_trunc('month', date) m, sum(amount) s FROM data GROUP BY 1) SELECT * FROM monthly ORDER BY m",
		"SELECT extract(month FROM date) AS m, count(*) FROM data GROUP BY m",
		"SELECT * FROM data ORDER BY amount DESC;",
		"SELECT a.region FROM data a JOIN data b ON a.region = b.region",
		"SELECT * FROM (SELECT region FROM data) t",
		"-- top regions\nSELECT region FROM data",
	}
	for _, q := range queries {
		assert.NoError(t, ValidateSQL(q), q)
	}
}

func TestValidateSQLRejects(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", "   "},
		{"comment only", "-- nothing here"},
		{"insert", "INSERT INTO data VALUES (1)"},
		{"update", "UPDATE data SET amount = 0"},
		{"delete", "DELETE FROM data"},
		{"drop", "DROP TABLE data"},
		{"create", "CREATE TABLE x AS SELECT * FROM data"},
		{"pragma", "PRAGMA database_list"},
		{"multiple statements", "SELECT 1; SELECT 2"},
		{"piggybacked drop", "SELECT * FROM data; DROP TABLE data"},
		{"other table", "SELECT * FROM users"},
		{"read_parquet escape", "SELECT * FROM read_parquet('/etc/passwd')"},
		{"read_csv escape", "SELECT * FROM read_csv_auto('x.csv')"},
		{"copy out", "COPY data TO '/tmp/out.csv'"},
		{"attach", "ATTACH '/tmp/other.db' AS other"},
		{"set", "SET memory_limit='100GB'"},
		{"install", "INSTALL httpfs"},
		{"denied inside select", "SELECT * FROM data WHERE 1 IN (SELECT 1 FROM read_json_auto('x'))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSQL(tt.query)
			var synErr *SyntaxError
			require.ErrorAs(t, err, &synErr, tt.query)
		})
	}
}

func TestValidateSQLKeywordInStringLiteral(t *testing.T) {
	// Literals are opaque; keywords inside them must not trip the check.
	assert.NoError(t, ValidateSQL("SELECT * FROM data WHERE note = 'please drop this'"))
	assert.NoError(t, ValidateSQL("SELECT * FROM data WHERE note = 'insert; delete'"))
}

func TestStripComments(t *testing.T) {
	assert.Equal(t, "SELECT 1 ", stripComments("SELECT 1 -- trailing"))
	assert.Equal(t, "SELECT   1", stripComments("SELECT /* block */ 1"))
	assert.Equal(t, "SELECT '-- not a comment'", stripComments("SELECT '-- not a comment'"))
}
