package migrate

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dave/jennifer/jen"
)

const (
	migratePkg = "github.com/burugo/migrant/migrate"
	modelPkg   = "github.com/burugo/migrant/model"
)

// Delegate receives generated migration files.
type Delegate interface {
	AddMigration(fileName string, content io.Reader) error
}

// DirDelegate writes generated migrations into a directory, creating it if needed.
type DirDelegate struct {
	Dir string
}

func (d DirDelegate) AddMigration(fileName string, content io.Reader) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d.Dir, fileName)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RenderGo renders the file as Go source registering the migration with Register.
func RenderGo(pkg string, version int64, name string, f *File) ([]byte, error) {
	up, err := stepFuncCode(f.Up)
	if err != nil {
		return nil, err
	}
	down, err := stepFuncCode(f.Down)
	if err != nil {
		return nil, err
	}

	file := jen.NewFile(pkg)
	file.HeaderComment("Code generated by migrant generate.")
	file.Func().Id("init").Params().Block(
		jen.Qual(migratePkg, "Register").Call(
			jen.Lit(version),
			jen.Lit(name),
			up,
			down,
		),
	)
	var buf bytes.Buffer
	if err := file.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render Go migration: %w", err)
	}
	return buf.Bytes(), nil
}

func stepFuncCode(ops []Operation) (jen.Code, error) {
	body := make([]jen.Code, 0, len(ops)+1)
	for _, op := range ops {
		call, err := operationCall(op)
		if err != nil {
			return nil, err
		}
		if op.Exec != nil {
			body = append(body, call)
			continue
		}
		body = append(body, jen.If(
			jen.Err().Op(":=").Add(call),
			jen.Err().Op("!=").Nil(),
		).Block(jen.Return(jen.Err())))
	}
	body = append(body, jen.Return(jen.Nil()))
	return jen.Func().Params(jen.Id("b").Op("*").Qual(migratePkg, "Builder")).Error().Block(body...), nil
}

func operationCall(op Operation) (*jen.Statement, error) {
	b := jen.Id("b")
	switch {
	case op.CreateModel != nil:
		props, err := propertyCode(op.CreateModel.Properties)
		if err != nil {
			return nil, err
		}
		if op.CreateModel.Table != "" {
			args := append([]jen.Code{jen.Lit(op.CreateModel.Name), jen.Lit(op.CreateModel.Table)}, props...)
			return b.Dot("CreateModelWithTable").Call(args...), nil
		}
		return b.Dot("CreateModel").Call(append([]jen.Code{jen.Lit(op.CreateModel.Name)}, props...)...), nil
	case op.DestroyModel != "":
		return b.Dot("DestroyModel").Call(jen.Lit(op.DestroyModel)), nil
	case op.AddProperties != nil, op.ChangeProperties != nil:
		method, set := "AddProperties", op.AddProperties
		if set == nil {
			method, set = "ChangeProperties", op.ChangeProperties
		}
		props, err := propertyCode(set.Properties)
		if err != nil {
			return nil, err
		}
		return b.Dot(method).Call(append([]jen.Code{jen.Lit(set.Model)}, props...)...), nil
	case op.RemoveProperties != nil:
		args := []jen.Code{jen.Lit(op.RemoveProperties.Model)}
		for _, name := range op.RemoveProperties.Properties {
			args = append(args, jen.Lit(name))
		}
		return b.Dot("RemoveProperties").Call(args...), nil
	case op.Exec != nil:
		args := []jen.Code{jen.Lit(op.Exec.SQL)}
		for _, a := range op.Exec.Args {
			if a == nil {
				args = append(args, jen.Nil())
				continue
			}
			args = append(args, jen.Lit(a))
		}
		return b.Dot("Exec").Call(args...), nil
	}
	return nil, op.validate()
}

// propertyCode renders each property as model.Field("name", model.String().Size(100)...).
func propertyCode(defs Properties) ([]jen.Code, error) {
	props, err := defs.Parse()
	if err != nil {
		return nil, err
	}
	out := make([]jen.Code, len(props))
	for i, p := range props {
		var expr *jen.Statement
		for j, c := range p.Clauses() {
			var args []jen.Code
			switch {
			case c.HasModelArg():
				args = append(args, jen.Lit(c.Arg))
			case c.HasArg():
				args = append(args, jen.Op(c.Arg))
			}
			if j == 0 {
				expr = jen.Qual(modelPkg, c.Name).Call(args...)
				continue
			}
			expr = expr.Dot(c.Name).Call(args...)
		}
		out[i] = jen.Qual(modelPkg, "Field").Call(jen.Lit(p.Name()), expr)
	}
	return out, nil
}
