package augment

import (
	"strconv"
	"strings"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
)

// TagLiteral resolves a literal's tag and native value from its lexical form.
//
//   - quoted 0x + 40 hex digits: ADDRESS, lowercased
//   - TRUE / FALSE, bare or quoted: BOOL
//   - numbers with a fraction or exponent: FLOAT
//   - other numbers, including 0x hex: INTEGER
//   - other strings: TEXT
//   - NULL: the null value, tag left at its zero value
func TagLiteral(l *queryir.Literal) error {
	switch l.Kind {
	case queryir.LitNull:
		l.Value = ir.IRNull{}

	case queryir.LitBool:
		l.Tag = ir.TagBool
		l.Value = ir.IRBool(strings.EqualFold(l.Text, "true"))

	case queryir.LitString:
		switch {
		case ir.IsAddress(l.Text):
			l.Tag = ir.TagAddress
			l.Value = ir.IRAddress(strings.ToLower(l.Text))
		case strings.EqualFold(l.Text, "true"), strings.EqualFold(l.Text, "false"):
			l.Tag = ir.TagBool
			l.Value = ir.IRBool(strings.EqualFold(l.Text, "true"))
		default:
			l.Tag = ir.TagText
			l.Value = ir.IRString(l.Text)
		}

	case queryir.LitNumber:
		v, tag, err := parseNumber(l.Text)
		if err != nil {
			return err
		}
		l.Tag = tag
		l.Value = v
	}
	l.Tagged = true
	return nil
}

func parseNumber(text string) (ir.IRValue, ir.TypeTag, error) {
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "0x") {
		n, err := strconv.ParseUint(lower[2:], 16, 64)
		if err != nil {
			return nil, 0, ir.Errorf(ir.CodeParse, "hex literal %s does not fit in 64 bits", text)
		}
		return ir.IRInt(int64(n)), ir.TagInteger, nil
	}
	if strings.ContainsAny(lower, ".e") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, 0, ir.Errorf(ir.CodeParse, "invalid number %s", text)
		}
		return ir.IRFloat(f), ir.TagFloat, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, 0, ir.Errorf(ir.CodeParse, "integer literal %s does not fit in 64 bits", text)
	}
	return ir.IRInt(n), ir.TagInteger, nil
}

func tagLiterals(stmt queryir.Statement) error {
	for _, lit := range queryir.Literals(stmt) {
		if err := TagLiteral(lit); err != nil {
			return err
		}
	}
	return nil
}
