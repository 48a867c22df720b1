package kite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"news-trading-bot/internal/broker"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		msg       string
		transient bool
		code      string
	}{
		{"Insufficient funds. Required margin is 12000", false, broker.CodeInsufficientFunds},
		{"Invalid tradingsymbol", false, broker.CodeInvalidSymbol},
		{"unknown symbol ZZZZ", false, broker.CodeInvalidSymbol},
		{"Too many requests", true, broker.CodeRateLimited},
		{"rate limit exceeded", true, broker.CodeRateLimited},
		{"gateway timeout", true, broker.CodeUnavailable},
	}
	for _, tc := range cases {
		err := classify(errors.New(tc.msg))
		assert.Equal(t, tc.transient, broker.IsTransient(err), tc.msg)
		var be *broker.Error
		assert.ErrorAs(t, err, &be)
		assert.Equal(t, tc.code, be.Code, tc.msg)
	}
}
