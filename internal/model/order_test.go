package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]OrderStatus{
		"done":      OrderFilled,
		"DONE":      OrderFilled,
		"filled":    OrderFilled,
		"canceled":  OrderCanceled,
		"cancelled": OrderCanceled,
		"CANCELLED": OrderCanceled,
		"open":      OrderOpen,
		"active":    OrderOpen,
		"":          OrderOpen,
		"whatever":  OrderOpen,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), raw)
	}
}

func TestStatusFromOpType(t *testing.T) {
	assert.Equal(t, OrderFilled, StatusFromOpType("DEAL"))
	assert.Equal(t, OrderFilled, StatusFromOpType("deal"))
	assert.Equal(t, OrderCanceled, StatusFromOpType("CANCEL"))
	assert.Equal(t, OrderOpen, StatusFromOpType("unknown"))
	assert.Equal(t, OrderOpen, StatusFromOpType(""))
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, OrderFilled.Terminal())
	assert.True(t, OrderCanceled.Terminal())
	assert.False(t, OrderOpen.Terminal())
}
