package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/actionpipe/pipeline/handler"
)

func TestPayloadPathExists(t *testing.T) {
	pred := PayloadPathExists("user.id")

	assert.True(t, pred(`{"user":{"id":42}}`))
	assert.True(t, pred([]byte(`{"user":{"id":null}}`)))
	assert.True(t, pred(json.RawMessage(`{"user":{"id":"u1"}}`)))
	assert.False(t, pred(`{"user":{}}`))
	assert.False(t, pred(`{}`))
	assert.False(t, pred(nil))
}

func TestPayloadPathEquals(t *testing.T) {
	pred := PayloadPathEquals("kind", "refund")

	assert.True(t, pred(`{"kind":"refund"}`))
	assert.False(t, pred(`{"kind":"charge"}`))
	assert.False(t, pred(`{}`))

	// Loose string-form comparison covers numbers.
	assert.True(t, PayloadPathEquals("amount", "100")(`{"amount":100}`))
}

func TestPayloadPathTrue(t *testing.T) {
	pred := PayloadPathTrue("flags.urgent")

	assert.True(t, pred(`{"flags":{"urgent":true}}`))
	assert.False(t, pred(`{"flags":{"urgent":false}}`))
	assert.False(t, pred(`{"flags":{}}`))
}

func TestPayloadPath_StructPayload(t *testing.T) {
	type order struct {
		Total int    `json:"total"`
		State string `json:"state"`
	}

	pred := PayloadPath("total", func(res gjson.Result) bool {
		return res.Int() > 50
	})

	assert.True(t, pred(order{Total: 100, State: "open"}))
	assert.False(t, pred(order{Total: 10}))
	assert.False(t, pred(make(chan int)), "unmarshalable payloads fail the predicate")
}

func TestPayloadFilter_EndToEnd(t *testing.T) {
	eng := NewWithDefaults()

	_, err := eng.Register("order.placed", func(ctx context.Context, payload any, ctl *handler.Controller) (any, error) {
		return "handled", nil
	}, WithBlocking())
	require.NoError(t, err)

	env, err := eng.DispatchWithResult(context.Background(), "order.placed",
		`{"region":"eu"}`,
		WithPayloadFilter(PayloadPathEquals("region", "eu")))
	require.NoError(t, err)
	assert.Equal(t, "handled", env.FirstValue())

	env, err = eng.DispatchWithResult(context.Background(), "order.placed",
		`{"region":"us"}`,
		WithPayloadFilter(PayloadPathEquals("region", "eu")))
	require.NoError(t, err)
	assert.Empty(t, env.Results)
}
