package generator

import "sort"

// ShapeKind discriminates the closed ReturnShape variant set.
type ShapeKind int

const (
	ShapeNone ShapeKind = iota
	ShapeSingle
	ShapeTable
)

// ReturnShape describes what a command invocation materializes: nothing,
// one scalar, or a fixed column list of zero or more rows.
type ReturnShape struct {
	Kind           ShapeKind
	Single         DbType
	SingleNullable bool
	Columns        []Attribute
}

func NoneShape() ReturnShape {
	return ReturnShape{Kind: ShapeNone}
}

func SingleShape(t DbType, nullable bool) ReturnShape {
	return ReturnShape{Kind: ShapeSingle, Single: t, SingleNullable: nullable}
}

// TableShape builds a table-shaped return. An empty column list cannot
// justify a table and resolves to None.
func TableShape(columns []Attribute) ReturnShape {
	if len(columns) == 0 {
		return NoneShape()
	}
	return ReturnShape{Kind: ShapeTable, Columns: columns}
}

// CommandKind determines how a callable's qualified name and parameters
// are embedded in generated query text.
type CommandKind int

const (
	CommandStoredProcedure CommandKind = iota
	CommandFunction
	CommandTableGetter
	CommandRawSQL
)

// Command is the connection-independent model of one callable database
// object. Built once per schema object, never mutated.
type Command struct {
	Name          string
	QualifiedName string
	Kind          CommandKind
	RawText       string
	Params        []Attribute
	Returns       ReturnShape
}

// TableTypeDef describes a user-defined table type, used both as a
// structured parameter type and to generate row marshaling code.
type TableTypeDef struct {
	SchemaName string
	Name       string
	Columns    []Attribute
}

// Qualified returns the dotted "schema.name" the driver expects for a
// structured parameter's type name.
func (t TableTypeDef) Qualified() string {
	return t.SchemaName + "." + t.Name
}

// ProcedureCommand models a stored procedure call by qualified name.
func ProcedureCommand(schema, name string, params []Attribute, returns ReturnShape) Command {
	return Command{
		Name:          name,
		QualifiedName: bracketQualified(schema, name),
		Kind:          CommandStoredProcedure,
		Params:        params,
		Returns:       returns,
	}
}

// FunctionCommand models a user-defined function call wrapped in a
// scalar or tabular SELECT, depending on its return shape.
func FunctionCommand(schema, name string, params []Attribute, returns ReturnShape) Command {
	return Command{
		Name:          name,
		QualifiedName: bracketQualified(schema, name),
		Kind:          CommandFunction,
		Params:        params,
		Returns:       returns,
	}
}

// TableGetterCommand models a parameterless SELECT * over a base table.
func TableGetterCommand(schema, name string, columns []Attribute) Command {
	return Command{
		Name:          name,
		QualifiedName: bracketQualified(schema, name),
		Kind:          CommandTableGetter,
		Returns:       TableShape(columns),
	}
}

// RawSQLCommand models free-form command text. It has no parameter or
// shape discovery path and the renderer refuses it.
func RawSQLCommand(text string) Command {
	return Command{
		Name:    "raw",
		RawText: text,
		Kind:    CommandRawSQL,
		Returns: NoneShape(),
	}
}

// SchemaBundle groups everything introspected from one database schema.
// Constructed once per run, sorted, then handed immutably to rendering.
type SchemaBundle struct {
	Schema       string
	TableTypes   []TableTypeDef
	Procedures   []Command
	Functions    []Command
	TableGetters []Command
}

// Sort orders every category lexicographically by name so output is
// reproducible regardless of catalog enumeration order.
func (b *SchemaBundle) Sort() {
	sort.Slice(b.TableTypes, func(i, j int) bool { return b.TableTypes[i].Name < b.TableTypes[j].Name })
	sort.Slice(b.Procedures, func(i, j int) bool { return b.Procedures[i].Name < b.Procedures[j].Name })
	sort.Slice(b.Functions, func(i, j int) bool { return b.Functions[i].Name < b.Functions[j].Name })
	sort.Slice(b.TableGetters, func(i, j int) bool { return b.TableGetters[i].Name < b.TableGetters[j].Name })
}
