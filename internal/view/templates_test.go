package view

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	err = engine.Render(httptest.NewRecorder(), "pages/missing.html", TemplateData{})
	assert.Error(t, err)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "240.00", Money(240))
	assert.Equal(t, "1,234,567.50", Money(1234567.5))
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-15", FormatDate(d))
	assert.Equal(t, "2024-01-15", FormatDate(&d))
	var missing *time.Time
	assert.Empty(t, FormatDate(missing))
	assert.Empty(t, FormatDate(time.Time{}))
}

func TestQuery(t *testing.T) {
	q, err := Query("table", "Stationery", "q", "", "page", 2)
	require.NoError(t, err)
	assert.Equal(t, "page=2&table=Stationery", string(q))

	_, err = Query("table")
	assert.Error(t, err)
}
