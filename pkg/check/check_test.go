package check

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefine_DefaultDescription(t *testing.T) {
	tc := Define("check_positive_values", func(Scope) {})
	assert.Equal(t, "check_positive_values", tc.Name)
	assert.Equal(t, "check positive values", tc.Description)
	assert.Empty(t, tc.Notify)
}

func TestOnFailure_Appends(t *testing.T) {
	tc := Define("t", func(Scope) {}).OnFailure("term").OnFailure("slack", "board")
	assert.Equal(t, []string{"term", "slack", "board"}, tc.Notify)
}

func TestDescribe_Overrides(t *testing.T) {
	tc := Define("t", func(Scope) {}).Describe("temperature stays in range")
	assert.Equal(t, "temperature stays in range", tc.Description)
}

func TestThat_WrapsBoolPredicate(t *testing.T) {
	a := That("positive", func(e any) bool { return e.(int) > 0 })
	ok, err := a.Fn(5)
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = a.Fn(-1)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestThatErr_KeepsError(t *testing.T) {
	boom := errors.New("boom")
	a := ThatErr("explodes", func(any) (bool, error) { return false, boom })
	_, err := a.Fn(nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "explodes", a.Name)
}
