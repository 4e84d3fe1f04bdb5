package operators

import (
	"context"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
)

// concatOp concatenates two views into a fresh dense bundle, carrying
// only the declared output keys — and only when both inputs agree on
// each key's type. Sync, binary-concat-dense.
type concatOp struct{}

func (concatOp) Name() string  { return "concat" }
func (concatOp) Shape() Shape  { return BinaryConcatDense }
func (concatOp) IsAsync() bool { return false }

func (concatOp) WritesEffect(params map[string]any) *plan.Effect {
	return nil
}

func (concatOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error) {
	if len(in) != 2 {
		return column.RowView{}, errWrongMode("concat", false)
	}
	lhs, rhs := in[0], in[1]
	rawKeys, ok := params["keys"].([]any)
	if !ok {
		return column.RowView{}, apperr.New(apperr.KindValidation, "concat requires a \"keys\" param listing output keys")
	}
	keys := make([]column.KeyID, 0, len(rawKeys))
	for _, k := range rawKeys {
		id, err := paramAsKeyID(k)
		if err != nil {
			return column.RowView{}, err
		}
		keys = append(keys, id)
	}

	lActive, rActive := lhs.Active(), rhs.Active()
	n := len(lActive) + len(rActive)
	ids := make([]int64, 0, n)
	for _, i := range lActive {
		ids = append(ids, lhs.Bundle.IDs[i])
	}
	for _, i := range rActive {
		ids = append(ids, rhs.Bundle.IDs[i])
	}

	out := column.NewBundle(ids)
	for _, key := range keys {
		lFloat, lHasFloat := lhs.Bundle.Floats[key]
		rFloat, rHasFloat := rhs.Bundle.Floats[key]
		lStr, lHasStr := lhs.Bundle.Strings[key]
		rStr, rHasStr := rhs.Bundle.Strings[key]

		switch {
		case lHasFloat && rHasFloat:
			out = out.WithFloatColumn(key, concatFloat(lFloat, lActive, rFloat, rActive))
		case lHasStr && rHasStr:
			out = out.WithStringColumn(key, concatString(lStr, lActive, rStr, rActive))
		default:
			return column.RowView{}, apperr.New(apperr.KindValidation, "concat: key %d has incompatible or missing schema between inputs", key)
		}
	}

	return column.NewRowView(out), nil
}

func paramAsKeyID(v any) (column.KeyID, error) {
	switch n := v.(type) {
	case int:
		return column.KeyID(n), nil
	case int64:
		return column.KeyID(n), nil
	case float64:
		return column.KeyID(n), nil
	default:
		return 0, apperr.New(apperr.KindValidation, "concat output key is not an integer id")
	}
}

func concatFloat(l *column.FloatColumn, lActive []int, r *column.FloatColumn, rActive []int) *column.FloatColumn {
	n := len(lActive) + len(rActive)
	values := make([]float64, n)
	valid := make([]bool, n)
	pos := 0
	for _, i := range lActive {
		values[pos], valid[pos] = l.Get(i)
		pos++
	}
	for _, i := range rActive {
		values[pos], valid[pos] = r.Get(i)
		pos++
	}
	return &column.FloatColumn{Values: values, Valid: valid}
}

func concatString(l *column.StringColumn, lActive []int, r *column.StringColumn, rActive []int) *column.StringColumn {
	dict := &column.Dictionary{}
	index := make(map[string]int32)
	intern := func(s string) int32 {
		if code, ok := index[s]; ok {
			return code
		}
		code := int32(len(dict.Entries))
		dict.Entries = append(dict.Entries, s)
		index[s] = code
		return code
	}

	n := len(lActive) + len(rActive)
	codes := make([]int32, n)
	valid := make([]bool, n)
	pos := 0
	for _, i := range lActive {
		s, ok := l.Get(i)
		valid[pos] = ok
		if ok {
			codes[pos] = intern(s)
		}
		pos++
	}
	for _, i := range rActive {
		s, ok := r.Get(i)
		valid[pos] = ok
		if ok {
			codes[pos] = intern(s)
		}
		pos++
	}
	return &column.StringColumn{Dict: dict, Codes: codes, Valid: valid}
}

func (concatOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	return column.RowView{}, errWrongMode("concat", true)
}
