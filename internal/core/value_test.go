package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsObjectOrder(t *testing.T) {
	v, err := Parse([]byte(`{"z":1,"a":[true,null,"x"],"m":{"k":2.5}}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())

	members := v.Members()
	require.Len(t, members, 3)
	assert.Equal(t, "z", members[0].Key)
	assert.Equal(t, "a", members[1].Key)
	assert.Equal(t, "m", members[2].Key)

	assert.Equal(t, `{"z":1,"a":[true,null,"x"],"m":{"k":2.5}}`, v.String())
}

func TestParseEmptyIsNull(t *testing.T) {
	v, err := Parse(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = Parse([]byte("  null "))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{`{"a":`, `[1,2`, `1 2`, `{1:2}`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestObjectDuplicateKeyKeepsPosition(t *testing.T) {
	v := Object(M("a", Int(1)), M("b", Int(2)), M("a", Int(3)))
	assert.Equal(t, `{"a":3,"b":2}`, v.String())
}

func TestSetDoesNotMutateOriginal(t *testing.T) {
	orig := Object(M("n", Int(1)))
	upd := orig.Set("count", Int(7))

	assert.Equal(t, `{"n":1}`, orig.String())
	assert.Equal(t, `{"n":1,"count":7}`, upd.String())
	assert.Equal(t, `{"k":"v"}`, String("x").Set("k", String("v")).String())
}

func TestAccessors(t *testing.T) {
	v := MustParse(`{"n":42,"f":1.5,"s":"hi","b":true,"l":[1,2,3]}`)

	n, _ := v.Get("n")
	i, ok := n.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	f, _ := v.Get("f")
	_, ok = f.AsInt()
	assert.False(t, ok)
	fv, ok := f.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 1.5, fv)

	s, _ := v.Get("s")
	str, ok := s.AsString()
	require.True(t, ok)
	assert.Equal(t, "hi", str)

	l, _ := v.Get("l")
	assert.Equal(t, 3, l.Len())
	assert.True(t, l.Index(2).Equal(Int(3)))
	assert.True(t, l.Index(9).IsNull())

	_, ok = v.Get("missing")
	assert.False(t, ok)
}

func TestEqualComparesNumbersByValue(t *testing.T) {
	assert.True(t, MustParse(`1.0`).Equal(Int(1)))
	assert.False(t, MustParse(`{"a":1,"b":2}`).Equal(MustParse(`{"b":2,"a":1}`)))
	assert.True(t, Array().Equal(MustParse(`[]`)))
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf(map[string]any{"b": 1, "a": []any{"x", nil, 2.5}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",null,2.5],"b":1}`, v.String())

	type sample struct {
		Name string `json:"name"`
	}
	v, err = ValueOf(sample{Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"n"}`, v.String())

	_, err = ValueOf(make(chan int))
	assert.Error(t, err)
}

func TestValueInsideStructJSON(t *testing.T) {
	type wrapper struct {
		Data Value `json:"data"`
	}
	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"y":1,"x":2}}`), &w))
	assert.Equal(t, `{"y":1,"x":2}`, w.Data.String())

	out, err := json.Marshal(wrapper{Data: Array()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(out))
}

func TestFloatNonFiniteIsNull(t *testing.T) {
	var zero float64
	assert.True(t, Float(zero/zero).IsNull())
}

func TestAsIntRange(t *testing.T) {
	_, ok := MustParse(`9.223372036854775807e18`).AsInt()
	assert.False(t, ok)
	_, ok = MustParse(`1e19`).AsInt()
	assert.False(t, ok)

	n, ok := MustParse(`-9.223372036854775808e18`).AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), n)

	n, ok = MustParse(`4e3`).AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(4000), n)
}

func TestNumberRejectsNonNumericText(t *testing.T) {
	for _, text := range []string{"", "abc", "1 2", "+1", "01", `"5"`, "true"} {
		v := Number(json.Number(text))
		assert.True(t, v.IsNull(), "%q", text)
		out, err := json.Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, "null", string(out))
	}
	assert.Equal(t, "-1.5e3", Number("-1.5e3").String())
}

func TestTargetIsZero(t *testing.T) {
	assert.True(t, Target{}.IsZero())
	uid := 0
	assert.False(t, Target{User: &uid}.IsZero())
	assert.False(t, Target{Process: 12}.IsZero())
}
