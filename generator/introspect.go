package generator

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/microsoft/go-mssqldb/msdsn"
)

// Reserved system prefixes and the diagram-support table SQL Server
// management tooling plants in user databases.
const (
	reservedProcPrefix = "sp_"
	reservedFuncPrefix = "fn_"
	diagramTable       = "sysdiagrams"
)

// schemaFilter excludes temporary, archival and system namespaces from
// every enumeration, independent of object-name rules.
const schemaFilter = `s.name NOT IN ('sys', 'tmp', 'old', 'INFORMATION_SCHEMA')`

// Open validates the design-time DSN and opens a sqlserver connection.
func Open(dsn string) (*sql.DB, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	return db, nil
}

// Introspector derives the schema model from one live connection. It is
// single threaded and one shot: enumerations and dry runs are issued
// sequentially, and any failure aborts the run without retry.
type Introspector struct {
	db *sql.DB
}

func NewIntrospector(db *sql.DB) *Introspector {
	return &Introspector{db: db}
}

// Introspect enumerates table types, functions, stored procedures and
// base tables, and groups everything by schema into sorted bundles.
func (in *Introspector) Introspect(ctx context.Context) ([]SchemaBundle, error) {
	bundles := map[string]*SchemaBundle{}
	get := func(schema string) *SchemaBundle {
		b, ok := bundles[schema]
		if !ok {
			b = &SchemaBundle{Schema: schema}
			bundles[schema] = b
		}
		return b
	}

	tableTypes, err := in.tableTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("table types: %w", err)
	}
	for _, tt := range tableTypes {
		b := get(tt.SchemaName)
		b.TableTypes = append(b.TableTypes, tt)
	}

	if err := in.functions(ctx, get); err != nil {
		return nil, fmt.Errorf("functions: %w", err)
	}
	if err := in.procedures(ctx, get); err != nil {
		return nil, fmt.Errorf("procedures: %w", err)
	}
	if err := in.tables(ctx, get); err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}

	names := make([]string, 0, len(bundles))
	for name := range bundles {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]SchemaBundle, 0, len(names))
	for _, name := range names {
		b := bundles[name]
		b.Sort()
		out = append(out, *b)
	}
	return out, nil
}

func (in *Introspector) tableTypes(ctx context.Context) ([]TableTypeDef, error) {
	sqlStr := `SELECT s.name, tt.name, c.name, bt.name, c.is_nullable
			FROM sys.table_types AS tt
			JOIN sys.schemas AS s ON s.schema_id = tt.schema_id
			JOIN sys.columns AS c ON c.object_id = tt.type_table_object_id
			JOIN sys.types AS bt ON bt.user_type_id = c.user_type_id
			WHERE ` + schemaFilter + `
			ORDER BY s.name, tt.name, c.column_id`

	rows, err := in.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TableTypeDef
	var current *TableTypeDef
	for rows.Next() {
		var schemaName, typeName, colName, nativeType string
		var nullable bool
		if err := rows.Scan(&schemaName, &typeName, &colName, &nativeType, &nullable); err != nil {
			return nil, err
		}
		t, err := FromSQLType(nativeType)
		if err != nil {
			return nil, fmt.Errorf("%s.%s column %s: %w", schemaName, typeName, colName, err)
		}
		attr, err := NewAttribute(colName, t, nullable)
		if err != nil {
			return nil, err
		}
		if current == nil || current.SchemaName != schemaName || current.Name != typeName {
			result = append(result, TableTypeDef{SchemaName: schemaName, Name: typeName})
			current = &result[len(result)-1]
		}
		current.Columns = append(current.Columns, attr)
	}
	return result, rows.Err()
}

// moduleRec is one enumerated function or procedure: its schema-scoped
// identity plus the module source text defaults are sniffed from.
type moduleRec struct {
	schemaName string
	name       string
	objectType string
	objectID   int64
	definition string
}

func (in *Introspector) functions(ctx context.Context, get func(string) *SchemaBundle) error {
	sqlStr := `SELECT s.name, o.name, o.type, o.object_id, ISNULL(OBJECT_DEFINITION(o.object_id), '')
			FROM sys.objects AS o
			JOIN sys.schemas AS s ON s.schema_id = o.schema_id
			WHERE o.type IN ('FN', 'IF', 'TF') AND ` + schemaFilter + `
			ORDER BY s.name, o.name`

	recs, err := in.modules(ctx, sqlStr)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if strings.HasPrefix(strings.ToLower(rec.name), reservedFuncPrefix) {
			continue
		}
		params, ret, err := in.parameters(ctx, rec)
		if err != nil {
			return err
		}

		var shape ReturnShape
		switch strings.TrimSpace(rec.objectType) {
		case "FN":
			if ret == nil {
				return errUnknownFunctionShape(rec.schemaName+"."+rec.name, rec.objectType)
			}
			shape = SingleShape(*ret, true)
		case "IF", "TF":
			columns, err := in.columns(ctx, rec.objectID)
			if err != nil {
				return err
			}
			shape = TableShape(columns)
		default:
			return errUnknownFunctionShape(rec.schemaName+"."+rec.name, rec.objectType)
		}

		b := get(rec.schemaName)
		b.Functions = append(b.Functions, FunctionCommand(rec.schemaName, rec.name, params, shape))
	}
	return nil
}

func (in *Introspector) procedures(ctx context.Context, get func(string) *SchemaBundle) error {
	sqlStr := `SELECT s.name, p.name, 'P', p.object_id, ISNULL(OBJECT_DEFINITION(p.object_id), '')
			FROM sys.procedures AS p
			JOIN sys.schemas AS s ON s.schema_id = p.schema_id
			WHERE ` + schemaFilter + `
			ORDER BY s.name, p.name`

	recs, err := in.modules(ctx, sqlStr)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if strings.HasPrefix(strings.ToLower(rec.name), reservedProcPrefix) {
			continue
		}
		params, _, err := in.parameters(ctx, rec)
		if err != nil {
			return err
		}
		shape, err := in.dryRun(ctx, bracketQualified(rec.schemaName, rec.name), params)
		if err != nil {
			return err
		}
		b := get(rec.schemaName)
		b.Procedures = append(b.Procedures, ProcedureCommand(rec.schemaName, rec.name, params, shape))
	}
	return nil
}

func (in *Introspector) modules(ctx context.Context, sqlStr string) ([]moduleRec, error) {
	rows, err := in.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []moduleRec
	for rows.Next() {
		var rec moduleRec
		if err := rows.Scan(&rec.schemaName, &rec.name, &rec.objectType, &rec.objectID, &rec.definition); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// parameters maps a module's declared parameters. The parameter_id 0
// row, present for scalar functions only, is the declared return type
// and comes back separately.
func (in *Introspector) parameters(ctx context.Context, rec moduleRec) ([]Attribute, *DbType, error) {
	sqlStr := `SELECT p.name, t.name, t.is_table_type,
				ISNULL(SCHEMA_NAME(tt.schema_id) + '.' + tt.name, ''), p.parameter_id
			FROM sys.parameters AS p
			JOIN sys.types AS t ON t.user_type_id = p.user_type_id
			LEFT JOIN sys.table_types AS tt ON tt.user_type_id = p.user_type_id
			WHERE p.object_id = @p1
			ORDER BY p.parameter_id`

	rows, err := in.db.QueryContext(ctx, sqlStr, rec.objectID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var params []Attribute
	var ret *DbType
	for rows.Next() {
		var rawName, nativeType, tableTypeName string
		var isTableType bool
		var paramID int
		if err := rows.Scan(&rawName, &nativeType, &isTableType, &tableTypeName, &paramID); err != nil {
			return nil, nil, err
		}

		var t DbType
		if isTableType {
			t = TableType(tableTypeName)
		} else {
			t, err = FromSQLType(nativeType)
			if err != nil {
				return nil, nil, fmt.Errorf("%s.%s parameter %s: %w", rec.schemaName, rec.name, rawName, err)
			}
		}

		if paramID == 0 {
			ret = &t
			continue
		}
		nullable := nullableDefault(defaultLiteral(rec.definition, rawName))
		attr, err := NewAttribute(rawName, t, nullable)
		if err != nil {
			return nil, nil, err
		}
		params = append(params, attr)
	}
	return params, ret, rows.Err()
}

func (in *Introspector) tables(ctx context.Context, get func(string) *SchemaBundle) error {
	sqlStr := `SELECT s.name, t.name, t.object_id
			FROM sys.tables AS t
			JOIN sys.schemas AS s ON s.schema_id = t.schema_id
			WHERE t.name <> '` + diagramTable + `' AND ` + schemaFilter + `
			ORDER BY s.name, t.name`

	rows, err := in.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return err
	}
	defer rows.Close()

	type tableRec struct {
		schemaName string
		name       string
		objectID   int64
	}
	var recs []tableRec
	for rows.Next() {
		var rec tableRec
		if err := rows.Scan(&rec.schemaName, &rec.name, &rec.objectID); err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, rec := range recs {
		columns, err := in.columns(ctx, rec.objectID)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", rec.schemaName, rec.name, err)
		}
		b := get(rec.schemaName)
		b.TableGetters = append(b.TableGetters, TableGetterCommand(rec.schemaName, rec.name, columns))
	}
	return nil
}

// columns enumerates the declared columns of any object that has them:
// base tables and table-valued functions.
func (in *Introspector) columns(ctx context.Context, objectID int64) ([]Attribute, error) {
	sqlStr := `SELECT c.name, t.name, c.is_nullable
			FROM sys.columns AS c
			JOIN sys.types AS t ON t.user_type_id = c.user_type_id
			WHERE c.object_id = @p1
			ORDER BY c.column_id`

	rows, err := in.db.QueryContext(ctx, sqlStr, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Attribute
	for rows.Next() {
		var colName, nativeType string
		var nullable bool
		if err := rows.Scan(&colName, &nativeType, &nullable); err != nil {
			return nil, err
		}
		t, err := FromSQLType(nativeType)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", colName, err)
		}
		attr, err := NewAttribute(colName, t, nullable)
		if err != nil {
			return nil, err
		}
		columns = append(columns, attr)
	}
	return columns, rows.Err()
}

// dryRun executes a stored procedure schema-only: the EXEC is bracketed
// in FMTONLY so the server returns result metadata without running the
// body, with one typed placeholder bound per parameter. Table-typed
// parameters are not bound: the driver refuses to encode a structured
// value without column metadata, so each one is declared as an empty
// table variable in the batch instead, which carries the structured
// type name the probe needs. Zero columns means the procedure produces
// no result set.
func (in *Introspector) dryRun(ctx context.Context, qualified string, params []Attribute) (ReturnShape, error) {
	var text strings.Builder
	args := make([]any, 0, len(params))
	for _, p := range params {
		if p.Type.Kind == KindTableType {
			text.WriteString("DECLARE " + p.BindName + " " + bracketDotted(p.Type.TableType) + "; ")
			continue
		}
		args = append(args, sql.Named(p.Name, p.Type.Placeholder()))
	}
	text.WriteString("SET FMTONLY ON; EXEC " + qualified)
	if len(params) > 0 {
		text.WriteString(" " + bindList(params, false))
	}
	text.WriteString("; SET FMTONLY OFF;")

	rows, err := in.db.QueryContext(ctx, text.String(), args...)
	if err != nil {
		return ReturnShape{}, errDryRun(qualified, err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return ReturnShape{}, errDryRun(qualified, err)
	}

	var columns []Attribute
	for _, ct := range columnTypes {
		t, err := FromDriverType(ct.DatabaseTypeName())
		if err != nil {
			return ReturnShape{}, fmt.Errorf("%s column %s: %w", qualified, ct.Name(), err)
		}
		nullable, _ := ct.Nullable()
		attr, err := NewAttribute(ct.Name(), t, nullable)
		if err != nil {
			return ReturnShape{}, err
		}
		columns = append(columns, attr)
	}
	if err := rows.Err(); err != nil {
		return ReturnShape{}, errDryRun(qualified, err)
	}
	return TableShape(columns), nil
}

// headerBoundary marks where a module's parameter header ends and its
// body begins: the AS keyword, either opening a line or followed by
// BEGIN. Everything after it is body text and must not be sniffed.
var headerBoundary = regexp.MustCompile(`(?im)^\s*AS\b|\bAS\s+BEGIN\b`)

// moduleHeader truncates a module definition to its parameter header.
func moduleHeader(definition string) string {
	if loc := headerBoundary.FindStringIndex(definition); loc != nil {
		return definition[:loc[0]]
	}
	return definition
}

// defaultLiteral pulls a parameter's declared default out of the module
// header text; the catalog itself does not store T-SQL defaults. It
// matches "@name <type> = <literal>" up to the next separator, within
// the header only, so a body statement mentioning the parameter next to
// an unrelated literal never reads as a default.
func defaultLiteral(definition, rawName string) string {
	if definition == "" || rawName == "" {
		return ""
	}
	definition = moduleHeader(definition)
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(rawName) + `\b\s+[^=,()]+(?:\([^)]*\))?\s*=\s*([^,\r\n)]+)`)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(definition)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
