package journal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/retouch/retouch/internal/searchstring"
)

// ParseSearch turns a search query into List filters.
//
// Bare words match the command name or the error message. Fields are
// command, kind, error, trace (a trace ID prefix), status and
// is:failed or is:ok. A leading "-" excludes a term. Matching is case
// insensitive and "%" is a wildcard.
func ParseSearch(input string) ([]goqu.Expression, error) {
	terms, err := searchstring.Parse(input)
	if err != nil {
		return nil, err
	}

	res := []goqu.Expression{}
	for _, t := range terms {
		e, err := termFilter(t)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func termFilter(t searchstring.SearchTerm) (goqu.Expression, error) {
	like := func(col, pattern string) exp.BooleanExpression {
		if t.Exclude {
			return goqu.I(col).NotLike(pattern)
		}
		return goqu.I(col).Like(pattern)
	}

	switch t.Field {
	case "":
		p := "%" + t.Value + "%"
		if t.Exclude {
			return goqu.And(like("j.command", p), like("j.error", p)), nil
		}
		return goqu.Or(like("j.command", p), like("j.error", p)), nil
	case "command", "kind":
		return like("j."+t.Field, t.Value), nil
	case "error":
		return like("j.error", "%"+t.Value+"%"), nil
	case "trace":
		return like("j.trace_id", t.Value+"%"), nil
	case "status":
		n, err := strconv.Atoi(t.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid status %q", t.Value)
		}
		if t.Exclude {
			return goqu.I("j.status").Neq(n), nil
		}
		return goqu.I("j.status").Eq(n), nil
	case "is":
		var failed bool
		switch strings.ToLower(t.Value) {
		case "failed":
			failed = true
		case "ok":
		default:
			return nil, fmt.Errorf(`invalid value %q for "is", expected failed or ok`, t.Value)
		}
		if failed != t.Exclude {
			return goqu.I("j.kind").Neq(""), nil
		}
		return goqu.I("j.kind").Eq(""), nil
	}

	return nil, fmt.Errorf("unknown search field %q", t.Field)
}
