package main

import (
	stdtesting "testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/stockbill/internal/app"
	_ "github.com/odyssey-erp/stockbill/testing"
)

func TestMainReturnsInTestMode(t *stdtesting.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
