package generator

import (
	"fmt"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/jinzhu/inflection"
)

const (
	dbtxPkg  = "github.com/sqlkit/mssqlgen/dbtx"
	mssqlPkg = "github.com/microsoft/go-mssqldb"
	uuidPkg  = "github.com/google/uuid"
)

// Render turns one schema bundle into the lines of its generated source
// unit. It is pure: no I/O, and identical input yields identical lines.
func Render(b SchemaBundle) ([]string, error) {
	f := jen.NewFile(packageName(b.Schema))
	f.HeaderComment("Code generated by mssqlgen. DO NOT EDIT.")
	f.ImportAlias(mssqlPkg, "mssql")

	if len(b.TableTypes) > 0 {
		f.Comment(sectionTitle("User-Defined Table Types"))
		for _, tt := range b.TableTypes {
			renderTableType(f, tt)
		}
	}
	if len(b.Procedures) > 0 {
		f.Comment(sectionTitle("Stored Procedures"))
		for _, cmd := range b.Procedures {
			if err := renderCommand(f, cmd); err != nil {
				return nil, err
			}
		}
	}
	if len(b.Functions) > 0 {
		f.Comment(sectionTitle("User Defined Functions"))
		for _, cmd := range b.Functions {
			if err := renderCommand(f, cmd); err != nil {
				return nil, err
			}
		}
	}
	if len(b.TableGetters) > 0 {
		f.Comment(sectionTitle("Table Getters"))
		if err := renderTableGetters(f, b.TableGetters); err != nil {
			return nil, err
		}
	}

	var buf strings.Builder
	if err := f.Render(&buf); err != nil {
		return nil, err
	}
	return strings.Split(buf.String(), "\n"), nil
}

func packageName(schema string) string {
	return strings.ToLower(strings.ReplaceAll(schema, "_", ""))
}

func sectionTitle(name string) string {
	return "----- " + name + " -----"
}

// renderTableType emits the row struct for a user-defined table type,
// the reader that drains a *sql.Rows into row values, and the inverse
// that binds such values as a structured parameter.
func renderTableType(f *jen.File, tt TableTypeDef) {
	typeName := exportedName(tt.Name)

	f.Comment(bracketQualified(tt.SchemaName, tt.Name))
	f.Type().Id(typeName).StructFunc(func(g *jen.Group) {
		for _, col := range tt.Columns {
			g.Add(fieldDecl(col))
		}
	})

	f.Func().Id("Read"+typeName+"Rows").
		Params(jen.Id("rows").Op("*").Qual("database/sql", "Rows")).
		Params(jen.Op("[]").Id(typeName), jen.Error()).
		BlockFunc(func(g *jen.Group) {
			rowReadLoop(g, typeName, tt.Columns)
		})

	f.Func().Id(typeName+"Table").
		Params(jen.Id("rows").Op("[]").Id(typeName)).
		Qual(mssqlPkg, "TVP").
		Block(
			jen.Return(jen.Qual(mssqlPkg, "TVP").Values(jen.Dict{
				jen.Id("TypeName"): jen.Lit(tt.Qualified()),
				jen.Id("Value"):    jen.Id("rows"),
			})),
		)
}

// renderCommand emits one callable binding for a stored procedure or
// user-defined function.
func renderCommand(f *jen.File, cmd Command) error {
	if cmd.Kind == CommandRawSQL {
		return fmt.Errorf("%w: raw SQL command has no result discovery path", ErrUnsupportedCommandShape)
	}

	funcName := exportedName(cmd.Name)
	f.Comment(cmd.QualifiedName)

	switch cmd.Returns.Kind {
	case ShapeNone:
		f.Func().Id(funcName).
			ParamsFunc(func(g *jen.Group) { commandParams(g, cmd.Params) }).
			Error().
			BlockFunc(func(g *jen.Group) {
				g.List(jen.Id("_"), jen.Err()).Op(":=").
					Add(runner()).Dot("ExecContext").
					CallFunc(func(args *jen.Group) { commandArgs(args, cmd) })
				g.Return(jen.Err())
			})

	case ShapeSingle:
		renderScalarCommand(f, funcName, cmd)

	case ShapeTable:
		rowType := funcName + "Row"
		f.Type().Id(rowType).StructFunc(func(g *jen.Group) {
			for _, col := range cmd.Returns.Columns {
				g.Add(fieldDecl(col))
			}
		})
		renderRowsCommand(f, funcName, rowType, cmd)
	}
	return nil
}

// renderScalarCommand emits a binding that reads one row, one column.
// A zero-row result surfaces as sql.ErrNoRows from Scan rather than
// being conflated with a value.
func renderScalarCommand(f *jen.File, funcName string, cmd Command) {
	t := cmd.Returns.Single
	nullable := cmd.Returns.SingleNullable

	var ret *jen.Statement
	switch {
	case nullable && t.Kind == KindByteArray:
		ret = jen.Op("[]").Byte()
	case nullable:
		ret = t.GoType(jen.Op("*"))
	default:
		ret = t.GoType(jen.Null())
	}

	f.Func().Id(funcName).
		ParamsFunc(func(g *jen.Group) { commandParams(g, cmd.Params) }).
		Params(ret, jen.Error()).
		BlockFunc(func(g *jen.Group) {
			g.Add(scanTempDecl(0, Attribute{Name: "value", Type: t, Nullable: nullable}))
			g.Err().Op(":=").
				Add(runner()).Dot("QueryRowContext").
				CallFunc(func(args *jen.Group) { commandArgs(args, cmd) }).
				Dot("Scan").Call(jen.Op("&").Id(temp(0)))
			if !nullable {
				if t.Kind == KindGuid {
					g.Return(jen.Qual(uuidPkg, "UUID").Call(jen.Id(temp(0))), jen.Err())
				} else {
					g.Return(jen.Id(temp(0)), jen.Err())
				}
				return
			}
			g.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
			if t.Kind == KindByteArray {
				g.Return(jen.Id(temp(0)), jen.Nil())
				return
			}
			spec, _ := t.nullScan()
			g.If(jen.Op("!").Id(temp(0)).Dot("Valid")).Block(jen.Return(jen.Nil(), jen.Nil()))
			if t.Kind == KindGuid {
				g.Id("value").Op(":=").Qual(uuidPkg, "UUID").Call(jen.Id(temp(0)).Dot(spec.field))
			} else {
				g.Id("value").Op(":=").Id(temp(0)).Dot(spec.field)
			}
			g.Return(jen.Op("&").Id("value"), jen.Nil())
		})
}

// renderRowsCommand emits a binding that drains all result rows into a
// slice of row values.
func renderRowsCommand(f *jen.File, funcName, rowType string, cmd Command) {
	f.Func().Id(funcName).
		ParamsFunc(func(g *jen.Group) { commandParams(g, cmd.Params) }).
		Params(jen.Op("[]").Id(rowType), jen.Error()).
		BlockFunc(func(g *jen.Group) {
			g.List(jen.Id("rows"), jen.Err()).Op(":=").
				Add(runner()).Dot("QueryContext").
				CallFunc(func(args *jen.Group) { commandArgs(args, cmd) })
			g.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
			g.Defer().Id("rows").Dot("Close").Call()
			rowReadLoop(g, rowType, cmd.Returns.Columns)
		})
}

// renderTableGetters routes base-table SELECTs into their own namespace:
// methods on an exported zero-size struct, with row structs named by the
// singularized table name.
func renderTableGetters(f *jen.File, getters []Command) error {
	f.Comment("Tables is the namespace for base table getters.")
	f.Type().Id("Tables").Struct()

	for _, cmd := range getters {
		rowType := exportedName(inflection.Singular(cmd.Name))
		f.Comment(cmd.QualifiedName)
		f.Type().Id(rowType).StructFunc(func(g *jen.Group) {
			for _, col := range cmd.Returns.Columns {
				g.Add(fieldDecl(col))
			}
		})
		f.Func().Params(jen.Id("Tables")).Id(exportedName(cmd.Name)).
			ParamsFunc(func(g *jen.Group) { commandParams(g, nil) }).
			Params(jen.Op("[]").Id(rowType), jen.Error()).
			BlockFunc(func(g *jen.Group) {
				g.List(jen.Id("rows"), jen.Err()).Op(":=").
					Add(runner()).Dot("QueryContext").
					CallFunc(func(args *jen.Group) { commandArgs(args, cmd) })
				g.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
				g.Defer().Id("rows").Dot("Close").Call()
				rowReadLoop(g, rowType, cmd.Returns.Columns)
			})
	}
	return nil
}

// runner is the expression generated commands execute through: the
// wrapper picks the ambient transaction when one is present.
func runner() *jen.Statement {
	return jen.Id("c").Dot("Runner").Call()
}

// commandParams emits the fixed leading parameters plus one typed
// parameter per attribute; nullable ones are pointers.
func commandParams(g *jen.Group, params []Attribute) {
	g.Id("ctx").Qual("context", "Context")
	g.Id("c").Op("*").Qual(dbtxPkg, "Conn")
	for _, p := range params {
		s := jen.Id(paramIdent(p.Name))
		if p.Nullable && p.Type.Kind != KindByteArray && p.Type.Kind != KindTableType {
			s = s.Op("*")
		}
		g.Add(p.Type.GoType(s))
	}
}

// commandArgs emits the query text for the command's kind followed by
// one sql.Named binding per parameter.
func commandArgs(g *jen.Group, cmd Command) {
	g.Id("ctx")
	g.Lit(commandText(cmd))
	for _, p := range cmd.Params {
		var value jen.Code
		if p.Type.Kind == KindTableType {
			value = jen.Qual(mssqlPkg, "TVP").Values(jen.Dict{
				jen.Id("TypeName"): jen.Lit(p.Type.TableType),
				jen.Id("Value"):    jen.Id(paramIdent(p.Name)),
			})
		} else {
			value = jen.Id(paramIdent(p.Name))
		}
		g.Qual("database/sql", "Named").Call(jen.Lit(p.Name), value)
	}
}

// commandText builds the query text that embeds the callable's
// qualified name and bind parameters for its kind.
func commandText(cmd Command) string {
	switch cmd.Kind {
	case CommandStoredProcedure:
		text := "EXEC " + cmd.QualifiedName
		if len(cmd.Params) > 0 {
			text += " " + bindList(cmd.Params, false)
		}
		return text
	case CommandFunction:
		call := cmd.QualifiedName + "(" + bindList(cmd.Params, false) + ")"
		if cmd.Returns.Kind == ShapeTable {
			return "SELECT * FROM " + call
		}
		return "SELECT " + call
	case CommandTableGetter:
		return "SELECT * FROM " + cmd.QualifiedName
	default:
		return cmd.RawText
	}
}

// fieldDecl emits one struct field for a column; nullable columns are
// pointers, except []byte where nil already encodes NULL.
func fieldDecl(a Attribute) *jen.Statement {
	s := jen.Id(exportedName(a.Name))
	if a.Nullable && a.Type.Kind != KindByteArray {
		s = s.Op("*")
	}
	return a.Type.GoType(s)
}

// rowReadLoop emits the batch-read body: scan temps per column index,
// one Scan per row, materialization into the row struct, and the
// drained slice returned with rows.Err.
func rowReadLoop(g *jen.Group, rowType string, cols []Attribute) {
	g.Var().Id("out").Op("[]").Id(rowType)
	g.For(jen.Id("rows").Dot("Next").Call()).BlockFunc(func(loop *jen.Group) {
		for i, col := range cols {
			loop.Add(scanTempDecl(i, col))
		}
		loop.If(
			jen.Err().Op(":=").Id("rows").Dot("Scan").CallFunc(func(args *jen.Group) {
				for i := range cols {
					args.Op("&").Id(temp(i))
				}
			}),
			jen.Err().Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Err()))
		loop.Var().Id("v").Id(rowType)
		for i, col := range cols {
			materialize(loop, i, col)
		}
		loop.Id("out").Op("=").Append(jen.Id("out"), jen.Id("v"))
	})
	g.Return(jen.Id("out"), jen.Id("rows").Dot("Err").Call())
}

func temp(i int) string {
	return fmt.Sprintf("c%d", i)
}

// scanTempDecl declares the scan temporary for column index i: the
// nullable wrapper when the column is nullable, the storage type
// otherwise, with uniqueidentifier always routed through the driver's
// byte-order-aware type.
func scanTempDecl(i int, a Attribute) jen.Code {
	s := jen.Var().Id(temp(i))
	if a.Nullable {
		spec, ok := a.Type.nullScan()
		if !ok {
			return s.Op("[]").Byte()
		}
		return s.Qual(spec.pkg, spec.typ)
	}
	if a.Type.Kind == KindGuid {
		return s.Qual(mssqlPkg, "UniqueIdentifier")
	}
	return a.Type.GoType(s)
}

// materialize assigns scan temp i into field a of the row value v.
func materialize(g *jen.Group, i int, a Attribute) {
	field := jen.Id("v").Dot(exportedName(a.Name))
	if !a.Nullable {
		if a.Type.Kind == KindGuid {
			g.Add(field).Op("=").Qual(uuidPkg, "UUID").Call(jen.Id(temp(i)))
		} else {
			g.Add(field).Op("=").Id(temp(i))
		}
		return
	}
	spec, ok := a.Type.nullScan()
	if !ok {
		g.Add(field).Op("=").Id(temp(i))
		return
	}
	g.If(jen.Id(temp(i)).Dot("Valid")).BlockFunc(func(body *jen.Group) {
		if a.Type.Kind == KindGuid {
			body.Id("val").Op(":=").Qual(uuidPkg, "UUID").Call(jen.Id(temp(i)).Dot(spec.field))
		} else {
			body.Id("val").Op(":=").Id(temp(i)).Dot(spec.field)
		}
		body.Add(jen.Id("v").Dot(exportedName(a.Name))).Op("=").Op("&").Id("val")
	})
}

// paramIdent keeps generated parameter names clear of the identifiers
// the binding bodies already use, scan temps included.
func paramIdent(name string) string {
	switch name {
	case "ctx", "c", "rows", "err", "out", "v", "val", "value":
		return name + "Arg"
	}
	if len(name) > 1 && name[0] == 'c' && strings.TrimLeft(name[1:], "0123456789") == "" {
		return name + "Arg"
	}
	return name
}
