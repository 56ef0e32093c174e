package builtin

import (
	"encoding/base64"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCall(t *testing.T) {
	r := NewRegistry()

	t.Run("uuid", func(t *testing.T) {
		v, ok := r.Call("uuid()")
		require.True(t, ok)
		_, err := uuid.Parse(v.(string))
		assert.NoError(t, err)
	})

	t.Run("bare name is a zero-arg call", func(t *testing.T) {
		v, ok := r.Call("timestamp")
		require.True(t, ok)
		assert.Positive(t, v.(int64))
	})

	t.Run("unknown function", func(t *testing.T) {
		_, ok := r.Call("nope()")
		assert.False(t, ok)
	})

	t.Run("random respects bounds", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			v, ok := r.Call("random(5, 7)")
			require.True(t, ok)
			n := v.(int)
			assert.GreaterOrEqual(t, n, 5)
			assert.LessOrEqual(t, n, 7)
		}
	})

	t.Run("randomString length", func(t *testing.T) {
		v, ok := r.Call("randomString(24)")
		require.True(t, ok)
		assert.Len(t, v.(string), 24)
	})

	t.Run("base64", func(t *testing.T) {
		v, ok := r.Call(`base64("hello world")`)
		require.True(t, ok)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello world")), v)
	})

	t.Run("quoted argument may contain commas", func(t *testing.T) {
		v, ok := r.Call(`base64("a,b")`)
		require.True(t, ok)
		decoded, err := base64.StdEncoding.DecodeString(v.(string))
		require.NoError(t, err)
		assert.Equal(t, "a,b", string(decoded))
	})

	t.Run("urlEncode", func(t *testing.T) {
		v, ok := r.Call(`urlEncode(a b&c)`)
		require.True(t, ok)
		assert.Equal(t, "a+b%26c", v)
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("RESTWIRE_TEST_VALUE", "from-env")
		v, ok := r.Call("env(RESTWIRE_TEST_VALUE)")
		require.True(t, ok)
		assert.Equal(t, "from-env", v)
	})

	t.Run("date with layout", func(t *testing.T) {
		v, ok := r.Call("date(2006)")
		require.True(t, ok)
		year, err := strconv.Atoi(v.(string))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, year, 2026)
	})

	t.Run("registered extension", func(t *testing.T) {
		r.Register("constant", func([]string) any { return 42 })
		v, ok := r.Call("constant()")
		require.True(t, ok)
		assert.Equal(t, 42, v)
	})
}
