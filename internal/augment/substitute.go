package augment

import (
	"strings"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/sqlparse"
)

// domainTypes are the keywords the generic parser does not know about.
var domainTypes = map[string]ir.TypeTag{
	"ADDRESS": ir.TagAddress,
	"BOOL":    ir.TagBool,
	"FLOAT":   ir.TagFloat,
}

// substituteTypes replaces domain type keywords in column-type positions
// with their canonical equivalents. Mappings are returned sorted by offset.
func substituteTypes(sql string) (string, []ir.TypeMapping, error) {
	toks, err := sqlparse.Tokenize(sql)
	if err != nil {
		return "", nil, err
	}

	var (
		b        strings.Builder
		mappings []ir.TypeMapping
		last     int
		shift    int
	)
	for _, i := range typePositions(toks) {
		tok := toks[i]
		tag, ok := domainTypes[tok.Upper]
		if !ok {
			continue
		}
		canonical := ir.CanonicalType(tag)
		b.WriteString(sql[last:tok.Pos])
		b.WriteString(canonical)
		last = tok.End

		mappings = append(mappings, ir.TypeMapping{
			Original:     tag,
			Canonical:    canonical,
			Offset:       tok.Pos + shift,
			SourceOffset: tok.Pos,
		})
		shift += len(canonical) - (tok.End - tok.Pos)
	}
	if len(mappings) == 0 {
		return sql, nil, nil
	}
	b.WriteString(sql[last:])
	return b.String(), mappings, nil
}

// typePositions returns the indices of tokens that sit where a column type
// is written: the word after each column name in CREATE TABLE's column
// list, and after ADD [COLUMN] name in ALTER TABLE.
func typePositions(toks []sqlparse.Token) []int {
	if len(toks) == 0 {
		return nil
	}
	var out []int
	typeAfter := func(name int) {
		if name+1 < len(toks) && isName(toks[name]) && toks[name+1].Typ == sqlparse.TokWord {
			out = append(out, name+1)
		}
	}

	switch {
	case toks[0].Is("CREATE"):
		open := -1
		for i, t := range toks {
			if t.IsSymbol("(") {
				open = i
				break
			}
		}
		if open < 0 {
			return nil
		}
		depth := 0
		expectName := false
		for i := open; i < len(toks); i++ {
			t := toks[i]
			switch {
			case t.IsSymbol("("):
				depth++
				expectName = depth == 1
				continue
			case t.IsSymbol(")"):
				depth--
				if depth == 0 {
					return out
				}
				continue
			case depth == 1 && t.IsSymbol(","):
				expectName = true
				continue
			}
			if expectName && depth == 1 {
				typeAfter(i)
				expectName = false
			}
		}

	case toks[0].Is("ALTER"):
		for i, t := range toks {
			if !t.Is("ADD") {
				continue
			}
			name := i + 1
			if name < len(toks) && toks[name].Is("COLUMN") {
				name++
			}
			if name < len(toks) {
				typeAfter(name)
			}
		}
	}
	return out
}

func isName(t sqlparse.Token) bool {
	switch t.Typ {
	case sqlparse.TokWord:
		return !sqlparse.IsReserved(t.Val)
	case sqlparse.TokQuotedIdent, sqlparse.TokDQString:
		return true
	}
	return false
}
