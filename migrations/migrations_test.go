package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable": "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"postgresql://localhost/db":                        "pgx5://localhost/db",
		"pgx5://localhost/db":                              "pgx5://localhost/db",
	}
	for in, want := range cases {
		require.Equal(t, want, DriverURL(in))
	}
}

func TestEveryUpHasDown(t *testing.T) {
	ups, err := fs.Glob(files, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(files, down)
		require.NoError(t, err, "missing %s", down)
	}
}

func TestSaleReferencesAreOptional(t *testing.T) {
	body, err := files.ReadFile("0001_sales_core.up.sql")
	require.NoError(t, err)

	schema := string(body)
	start := strings.Index(schema, "CREATE TABLE IF NOT EXISTS sales (")
	require.GreaterOrEqual(t, start, 0)
	table := schema[start : start+strings.Index(schema[start:], ");")]

	for _, column := range []string{"point_of_sale_id", "user_id", "cancelled_by"} {
		var def string
		for _, line := range strings.Split(table, "\n") {
			fields := strings.Fields(line)
			if len(fields) > 0 && fields[0] == column {
				def = line
			}
		}
		require.NotEmpty(t, def, column)
		require.NotContains(t, def, "NOT NULL", column)
	}
}
