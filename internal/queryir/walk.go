package queryir

// WalkExpr calls fn for e and each of its descendants in depth-first
// pre-order. Returning false from fn skips the node's children.
func WalkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *Binary:
		WalkExpr(x.Left, fn)
		WalkExpr(x.Right, fn)
	case *Unary:
		WalkExpr(x.Operand, fn)
	case *IsNull:
		WalkExpr(x.Operand, fn)
	case *FuncCall:
		for _, a := range x.Args {
			WalkExpr(a, fn)
		}
	case *Paren:
		WalkExpr(x.Inner, fn)
	}
}

// StatementExprs returns the top-level expressions of s in source order.
func StatementExprs(s Statement) []Expr {
	var out []Expr
	add := func(e Expr) {
		if e != nil {
			out = append(out, e)
		}
	}
	switch st := s.(type) {
	case *CreateTable:
		for _, c := range st.Columns {
			add(c.Default)
		}
	case *Insert:
		for _, row := range st.Rows {
			for _, e := range row {
				add(e)
			}
		}
	case *Select:
		for _, it := range st.Items {
			add(it.Expr)
		}
		add(st.Where)
		for _, o := range st.OrderBy {
			add(o.Expr)
		}
		add(st.Limit)
		add(st.Offset)
	case *Update:
		for _, a := range st.Set {
			add(a.Value)
		}
		add(st.Where)
	case *Delete:
		add(st.Where)
	case *AlterTable:
		for _, a := range st.Actions {
			if ac, ok := a.(*AddColumn); ok {
				add(ac.Column.Default)
			}
		}
	}
	return out
}

// Literals returns every literal in s in source order.
func Literals(s Statement) []*Literal {
	var lits []*Literal
	for _, e := range StatementExprs(s) {
		WalkExpr(e, func(n Expr) bool {
			if lit, ok := n.(*Literal); ok {
				lits = append(lits, lit)
			}
			return true
		})
	}
	return lits
}

// ColumnDefs returns the column definitions declared by s: CREATE columns
// or ALTER ... ADD columns, in declaration order.
func ColumnDefs(s Statement) []*ColumnDef {
	switch st := s.(type) {
	case *CreateTable:
		return st.Columns
	case *AlterTable:
		var defs []*ColumnDef
		for _, a := range st.Actions {
			if ac, ok := a.(*AddColumn); ok {
				defs = append(defs, ac.Column)
			}
		}
		return defs
	default:
		return nil
	}
}

// Clone returns a deep copy of s. Literal values are immutable and shared.
func Clone(s Statement) Statement {
	switch st := s.(type) {
	case *CreateTable:
		c := *st
		c.Columns = make([]*ColumnDef, len(st.Columns))
		for i, col := range st.Columns {
			c.Columns[i] = cloneColumnDef(col)
		}
		return &c
	case *Insert:
		c := *st
		c.Columns = append([]string(nil), st.Columns...)
		c.Rows = make([][]Expr, len(st.Rows))
		for i, row := range st.Rows {
			c.Rows[i] = cloneExprs(row)
		}
		return &c
	case *Select:
		c := *st
		c.Items = make([]SelectItem, len(st.Items))
		for i, it := range st.Items {
			c.Items[i] = SelectItem{Expr: CloneExpr(it.Expr), Alias: it.Alias}
		}
		c.Where = CloneExpr(st.Where)
		c.OrderBy = make([]OrderItem, len(st.OrderBy))
		for i, o := range st.OrderBy {
			c.OrderBy[i] = OrderItem{Expr: CloneExpr(o.Expr), Desc: o.Desc}
		}
		c.Limit = CloneExpr(st.Limit)
		c.Offset = CloneExpr(st.Offset)
		return &c
	case *Update:
		c := *st
		c.Set = make([]Assignment, len(st.Set))
		for i, a := range st.Set {
			c.Set[i] = Assignment{Column: a.Column, Value: CloneExpr(a.Value)}
		}
		c.Where = CloneExpr(st.Where)
		return &c
	case *Delete:
		c := *st
		c.Where = CloneExpr(st.Where)
		return &c
	case *AlterTable:
		c := *st
		c.Actions = make([]AlterAction, len(st.Actions))
		for i, a := range st.Actions {
			switch act := a.(type) {
			case *AddColumn:
				c.Actions[i] = &AddColumn{Column: cloneColumnDef(act.Column)}
			case *DropColumn:
				d := *act
				c.Actions[i] = &d
			case *RenameColumn:
				r := *act
				c.Actions[i] = &r
			case *RenameTable:
				r := *act
				c.Actions[i] = &r
			}
		}
		return &c
	case *DropTable:
		c := *st
		return &c
	default:
		return s
	}
}

func cloneColumnDef(col *ColumnDef) *ColumnDef {
	if col == nil {
		return nil
	}
	c := *col
	c.Params = append([]string(nil), col.Params...)
	c.Default = CloneExpr(col.Default)
	return &c
}

func cloneExprs(es []Expr) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = CloneExpr(e)
	}
	return out
}

// CloneExpr returns a deep copy of e.
func CloneExpr(e Expr) Expr {
	switch x := e.(type) {
	case nil:
		return nil
	case *Literal:
		c := *x
		return &c
	case *ColumnRef:
		c := *x
		return &c
	case *Binary:
		return &Binary{Op: x.Op, Left: CloneExpr(x.Left), Right: CloneExpr(x.Right)}
	case *Unary:
		return &Unary{Op: x.Op, Operand: CloneExpr(x.Operand)}
	case *IsNull:
		return &IsNull{Operand: CloneExpr(x.Operand), Not: x.Not}
	case *FuncCall:
		return &FuncCall{Name: x.Name, Args: cloneExprs(x.Args), Star: x.Star}
	case *Paren:
		return &Paren{Inner: CloneExpr(x.Inner)}
	default:
		return e
	}
}
