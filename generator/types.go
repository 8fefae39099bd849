package generator

import (
	"strings"
	"time"

	"github.com/dave/jennifer/jen"
	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"
)

// Kind enumerates the closed set of value types a database object can
// carry across the generated boundary.
type Kind int

const (
	KindByte Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindDateTime
	KindGuid
	KindString
	KindBool
	KindByteArray
	KindDouble
	KindDecimal
	KindTableType
)

// DbType is one variant of the type system: a primitive Kind, or a
// user-defined table type carrying its qualified "schema.name".
type DbType struct {
	Kind      Kind
	TableType string
}

// TableType returns the variant for a user-defined table type.
func TableType(qualified string) DbType {
	return DbType{Kind: KindTableType, TableType: qualified}
}

func (t DbType) String() string {
	if t.Kind == KindTableType {
		return t.TableType
	}
	return t.SQLName()
}

// FromSQLType maps a sys.types name (lower case) onto a DbType. Every
// supported native name resolves to exactly one variant; several native
// names collapse onto the same variant. Unknown names are a fatal
// configuration gap, not a default.
func FromSQLType(name string) (DbType, error) {
	switch strings.ToLower(name) {
	case "tinyint":
		return DbType{Kind: KindByte}, nil
	case "smallint":
		return DbType{Kind: KindInt16}, nil
	case "int":
		return DbType{Kind: KindInt32}, nil
	case "bigint":
		return DbType{Kind: KindInt64}, nil
	case "date", "datetime", "datetime2", "smalldatetime":
		return DbType{Kind: KindDateTime}, nil
	case "uniqueidentifier":
		return DbType{Kind: KindGuid}, nil
	case "char", "nchar", "varchar", "nvarchar", "text", "ntext", "sysname", "xml":
		return DbType{Kind: KindString}, nil
	case "bit":
		return DbType{Kind: KindBool}, nil
	case "binary", "varbinary", "image", "rowversion", "timestamp":
		return DbType{Kind: KindByteArray}, nil
	case "float", "real":
		return DbType{Kind: KindDouble}, nil
	case "decimal", "numeric", "money", "smallmoney":
		return DbType{Kind: KindDecimal}, nil
	default:
		return DbType{}, errUnsupportedType(name)
	}
}

// FromDriverType maps a driver-reported column type name
// (sql.ColumnType.DatabaseTypeName, upper case) onto a DbType. It is kept
// as its own table rather than delegating to FromSQLType: the driver's
// name set is not the catalog's, and agreement between the two on the
// overlap is asserted by tests instead of by construction.
func FromDriverType(name string) (DbType, error) {
	switch strings.ToUpper(name) {
	case "TINYINT":
		return DbType{Kind: KindByte}, nil
	case "SMALLINT":
		return DbType{Kind: KindInt16}, nil
	case "INT":
		return DbType{Kind: KindInt32}, nil
	case "BIGINT":
		return DbType{Kind: KindInt64}, nil
	case "DATE", "DATETIME", "DATETIME2", "SMALLDATETIME":
		return DbType{Kind: KindDateTime}, nil
	case "UNIQUEIDENTIFIER":
		return DbType{Kind: KindGuid}, nil
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT", "SYSNAME", "XML":
		return DbType{Kind: KindString}, nil
	case "BIT":
		return DbType{Kind: KindBool}, nil
	case "BINARY", "VARBINARY", "IMAGE", "ROWVERSION", "TIMESTAMP":
		return DbType{Kind: KindByteArray}, nil
	case "FLOAT", "REAL":
		return DbType{Kind: KindDouble}, nil
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return DbType{Kind: KindDecimal}, nil
	default:
		return DbType{}, errUnsupportedType(name)
	}
}

// GoType appends the Go storage type for t to a jennifer statement.
// Nullable storage (pointers) is the caller's concern.
func (t DbType) GoType(s *jen.Statement) *jen.Statement {
	switch t.Kind {
	case KindByte:
		return s.Byte()
	case KindInt16:
		return s.Int16()
	case KindInt32:
		return s.Int32()
	case KindInt64:
		return s.Int64()
	case KindDateTime:
		return s.Qual("time", "Time")
	case KindGuid:
		return s.Qual("github.com/google/uuid", "UUID")
	case KindString:
		return s.String()
	case KindBool:
		return s.Bool()
	case KindByteArray:
		return s.Op("[]").Byte()
	case KindDouble, KindDecimal:
		return s.Float64()
	case KindTableType:
		return s.Op("[]").Id(exportedName(objectPart(t.TableType)))
	}
	return s.Any()
}

// scanSpec names the wrapper type a nullable column of some Kind scans
// into, and the field holding the value when Valid.
type scanSpec struct {
	pkg   string
	typ   string
	field string
}

// nullScan returns the nullable scan wrapper for t. ByteArray reports
// ok=false: a []byte scans NULL as nil without a wrapper. Table types
// never appear as result columns.
func (t DbType) nullScan() (scanSpec, bool) {
	switch t.Kind {
	case KindByte:
		return scanSpec{"database/sql", "NullByte", "Byte"}, true
	case KindInt16:
		return scanSpec{"database/sql", "NullInt16", "Int16"}, true
	case KindInt32:
		return scanSpec{"database/sql", "NullInt32", "Int32"}, true
	case KindInt64:
		return scanSpec{"database/sql", "NullInt64", "Int64"}, true
	case KindDateTime:
		return scanSpec{"database/sql", "NullTime", "Time"}, true
	case KindGuid:
		return scanSpec{"github.com/microsoft/go-mssqldb", "NullUniqueIdentifier", "UUID"}, true
	case KindString:
		return scanSpec{"database/sql", "NullString", "String"}, true
	case KindBool:
		return scanSpec{"database/sql", "NullBool", "Bool"}, true
	case KindDouble, KindDecimal:
		return scanSpec{"database/sql", "NullFloat64", "Float64"}, true
	default:
		return scanSpec{}, false
	}
}

// SQLName is the driver-level type tag for t, used in diagnostics and
// emitted into generated source where a SQL type must be named.
func (t DbType) SQLName() string {
	switch t.Kind {
	case KindByte:
		return "tinyint"
	case KindInt16:
		return "smallint"
	case KindInt32:
		return "int"
	case KindInt64:
		return "bigint"
	case KindDateTime:
		return "datetime2"
	case KindGuid:
		return "uniqueidentifier"
	case KindString:
		return "nvarchar(max)"
	case KindBool:
		return "bit"
	case KindByteArray:
		return "varbinary(max)"
	case KindDouble:
		return "float"
	case KindDecimal:
		return "decimal(38, 10)"
	case KindTableType:
		return t.TableType
	}
	return ""
}

// Placeholder returns a zero value of the right driver type for binding
// t's parameter slot in a schema-only dry run. A table type yields a
// TVP carrying only the type tag: the driver cannot encode a structured
// value without row metadata, so the dry run never binds it and instead
// declares an empty table variable in the probe batch.
func (t DbType) Placeholder() any {
	switch t.Kind {
	case KindByte:
		return byte(0)
	case KindInt16:
		return int16(0)
	case KindInt32:
		return int32(0)
	case KindInt64:
		return int64(0)
	case KindDateTime:
		return time.Time{}
	case KindGuid:
		return uuid.Nil
	case KindString:
		return ""
	case KindBool:
		return false
	case KindByteArray:
		return []byte{}
	case KindDouble, KindDecimal:
		return float64(0)
	case KindTableType:
		return mssql.TVP{TypeName: t.TableType}
	}
	return nil
}
