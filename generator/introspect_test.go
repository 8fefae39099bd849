package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntrospect(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Table types. The enumeration itself carries the reserved-schema
	// filter.
	mock.ExpectQuery(`sys.table_types(?s:.*)NOT IN \('sys', 'tmp', 'old', 'INFORMATION_SCHEMA'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "type", "column", "native", "nullable"}).
			AddRow("app", "Point", "Id", "int", false).
			AddRow("app", "Point", "Label", "nvarchar", true))

	// Functions: one scalar function plus a reserved-prefix one that
	// must be skipped before any further query.
	mock.ExpectQuery(`sys.objects`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "name", "type", "object_id", "definition"}).
			AddRow("app", "Score", "FN", int64(101),
				"CREATE FUNCTION [app].[Score](@UserId INT = NULL) RETURNS INT AS BEGIN RETURN 1 END").
			AddRow("app", "fn_internal", "FN", int64(102), ""))

	mock.ExpectQuery(`sys.parameters`).WithArgs(int64(101)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "native", "is_table_type", "table_type", "parameter_id"}).
			AddRow("", "int", false, "", 0).
			AddRow("@UserId", "int", false, "", 1))

	// Procedures: one with no result set, one table shaped, one taking a
	// table-valued parameter, one with the reserved system prefix.
	mock.ExpectQuery(`sys.procedures`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "name", "type", "object_id", "definition"}).
			AddRow("app", "Cleanup", "P", int64(201), "").
			AddRow("app", "GetUsers", "P", int64(202), "").
			AddRow("app", "SavePoints", "P", int64(204), "").
			AddRow("app", "sp_refreshviews", "P", int64(203), ""))

	mock.ExpectQuery(`sys.parameters`).WithArgs(int64(201)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "native", "is_table_type", "table_type", "parameter_id"}))
	mock.ExpectQuery(`SET FMTONLY ON; EXEC \[app\].\[Cleanup\]; SET FMTONLY OFF;`).
		WillReturnRows(sqlmock.NewRows([]string{}))

	mock.ExpectQuery(`sys.parameters`).WithArgs(int64(202)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "native", "is_table_type", "table_type", "parameter_id"}).
			AddRow("@Min", "int", false, "", 1))
	mock.ExpectQuery(`SET FMTONLY ON; EXEC \[app\].\[GetUsers\] @min; SET FMTONLY OFF;`).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("Id").OfType("INT", int32(0)).Nullable(false),
			sqlmock.NewColumn("Email").OfType("NVARCHAR", "").Nullable(true),
		))

	// Table-valued parameters are not bound in the dry run; the batch
	// declares an empty table variable of the type instead.
	mock.ExpectQuery(`sys.parameters`).WithArgs(int64(204)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "native", "is_table_type", "table_type", "parameter_id"}).
			AddRow("@Points", "Point", true, "app.Point", 1))
	mock.ExpectQuery(`DECLARE @points \[app\]\.\[Point\]; SET FMTONLY ON; EXEC \[app\]\.\[SavePoints\] @points; SET FMTONLY OFF;`).
		WillReturnRows(sqlmock.NewRows([]string{}))

	// Base tables, minus the diagram-support table.
	mock.ExpectQuery(`sys.tables(?s:.*)sysdiagrams`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "name", "object_id"}).
			AddRow("app", "Users", int64(501)))
	mock.ExpectQuery(`sys.columns`).WithArgs(int64(501)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "native", "nullable"}).
			AddRow("Id", "bigint", false).
			AddRow("Email", "nvarchar", true))

	bundles, err := NewIntrospector(db).Introspect(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, bundles, 1)
	b := bundles[0]
	assert.Equal(t, "app", b.Schema)

	require.Len(t, b.TableTypes, 1)
	point := b.TableTypes[0]
	assert.Equal(t, "Point", point.Name)
	require.Len(t, point.Columns, 2)
	assert.Equal(t, "id", point.Columns[0].Name)
	assert.False(t, point.Columns[0].Nullable)
	assert.Equal(t, "label", point.Columns[1].Name)
	assert.True(t, point.Columns[1].Nullable)

	require.Len(t, b.Functions, 1)
	score := b.Functions[0]
	assert.Equal(t, "Score", score.Name)
	assert.Equal(t, ShapeSingle, score.Returns.Kind)
	assert.Equal(t, KindInt32, score.Returns.Single.Kind)
	require.Len(t, score.Params, 1)
	assert.Equal(t, "userId", score.Params[0].Name)
	assert.True(t, score.Params[0].Nullable, "default NULL should make the parameter optional")

	require.Len(t, b.Procedures, 3)
	cleanup, getUsers, savePoints := b.Procedures[0], b.Procedures[1], b.Procedures[2]
	assert.Equal(t, "Cleanup", cleanup.Name)
	assert.Equal(t, ShapeNone, cleanup.Returns.Kind, "zero dry-run columns resolve to no result")
	assert.Equal(t, "GetUsers", getUsers.Name)
	require.Equal(t, ShapeTable, getUsers.Returns.Kind)
	require.Len(t, getUsers.Returns.Columns, 2)
	assert.Equal(t, "id", getUsers.Returns.Columns[0].Name)
	assert.Equal(t, KindInt32, getUsers.Returns.Columns[0].Type.Kind)
	assert.True(t, getUsers.Returns.Columns[1].Nullable)
	assert.Equal(t, "SavePoints", savePoints.Name)
	assert.Equal(t, ShapeNone, savePoints.Returns.Kind)
	require.Len(t, savePoints.Params, 1)
	assert.Equal(t, KindTableType, savePoints.Params[0].Type.Kind)
	assert.Equal(t, "app.Point", savePoints.Params[0].Type.TableType)

	require.Len(t, b.TableGetters, 1)
	users := b.TableGetters[0]
	assert.Equal(t, "Users", users.Name)
	assert.Empty(t, users.Params)
	require.Equal(t, ShapeTable, users.Returns.Kind)
	assert.Equal(t, KindInt64, users.Returns.Columns[0].Type.Kind)
}

func TestIntrospectDryRunFailureIsFatal(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`sys.table_types`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "type", "column", "native", "nullable"}))
	mock.ExpectQuery(`sys.objects`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "name", "type", "object_id", "definition"}))
	mock.ExpectQuery(`sys.procedures`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "name", "type", "object_id", "definition"}).
			AddRow("app", "Broken", "P", int64(301), ""))
	mock.ExpectQuery(`sys.parameters`).WithArgs(int64(301)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "native", "is_table_type", "table_type", "parameter_id"}))
	mock.ExpectQuery(`SET FMTONLY ON`).
		WillReturnError(errors.New("permission denied"))

	_, err = NewIntrospector(db).Introspect(context.Background())
	require.ErrorIs(t, err, ErrDryRun)
}

func TestIntrospectUnknownFunctionShapeIsFatal(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`sys.table_types`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "type", "column", "native", "nullable"}))
	mock.ExpectQuery(`sys.objects`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "name", "type", "object_id", "definition"}).
			AddRow("app", "Agg", "AF", int64(103), ""))
	mock.ExpectQuery(`sys.parameters`).WithArgs(int64(103)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "native", "is_table_type", "table_type", "parameter_id"}))

	_, err = NewIntrospector(db).Introspect(context.Background())
	require.ErrorIs(t, err, ErrUnknownFunctionShape)
}

func TestIntrospectUnsupportedTypeIsFatal(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`sys.table_types`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "type", "column", "native", "nullable"}).
			AddRow("app", "Shape", "Region", "geography", false))

	_, err = NewIntrospector(db).Introspect(context.Background())
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDefaultLiteral(t *testing.T) {
	t.Parallel()

	def := "CREATE PROCEDURE [app].[Save] @UserId INT = NULL, @Name NVARCHAR(50) = N'x', @Count INT AS BEGIN RETURN END"

	tests := []struct {
		rawName string
		want    string
	}{
		{"@UserId", "NULL"},
		{"@Name", "N'x'"},
		{"@Count", ""},
		{"@Missing", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, defaultLiteral(def, tt.rawName), "parameter %q", tt.rawName)
	}
}

func TestDefaultLiteralIgnoresBodyText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		def     string
		rawName string
		want    string
	}{
		{
			name:    "null check in body",
			def:     "CREATE PROCEDURE [app].[Touch] @UserId INT\nAS BEGIN\nIF @UserId IS NULL SET @UserId = NULL\nRETURN\nEND",
			rawName: "@UserId",
			want:    "",
		},
		{
			name:    "assignment in body",
			def:     "CREATE PROCEDURE [app].[Reset] @Count INT\nAS\nBEGIN\nSET @Count = 0\nEND",
			rawName: "@Count",
			want:    "",
		},
		{
			name:    "header default survives truncation",
			def:     "CREATE PROCEDURE [app].[Prune] @Before DATETIME = NULL\nAS\nBEGIN\nIF @Before IS NULL SET @Before = GETDATE()\nEND",
			rawName: "@Before",
			want:    "NULL",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, defaultLiteral(tt.def, tt.rawName))
		})
	}
}
