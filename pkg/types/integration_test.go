package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_MarshalJSON(t *testing.T) {
	t.Run("encodable element kept as is", func(t *testing.T) {
		b, err := json.Marshal(Payload{TestName: "check_positive", Element: map[string]int{"v": -1}})
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, map[string]any{"v": float64(-1)}, got["element"])
		assert.Equal(t, "check_positive", got["test_name"])
		assert.NotContains(t, got, "error")
	})

	t.Run("unencodable element falls back to text", func(t *testing.T) {
		for _, elem := range []any{math.NaN(), math.Inf(-1), make(chan int), []float64{1, math.NaN()}} {
			b, err := json.Marshal(Payload{TestName: "check_positive", Element: elem, Error: "boom"})
			require.NoError(t, err, "element %v", elem)

			var got Payload
			require.NoError(t, json.Unmarshal(b, &got))
			assert.IsType(t, "", got.Element)
			assert.Equal(t, "boom", got.Error)
		}
	})

	t.Run("pointer and slice of payloads", func(t *testing.T) {
		p := &Payload{Element: math.NaN()}
		_, err := json.Marshal(struct {
			Last   *Payload
			Recent []Payload
		}{p, []Payload{*p}})
		assert.NoError(t, err)
	})
}
