package collectingcars

import (
	"context"
	"testing"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFetchSales(t *testing.T) {
	a := New(zerolog.Nop())

	var _ domain.SourceAdapter = a
	assert.Equal(t, "collecting_cars", a.Name())

	records, err := a.FetchSales(context.Background(), domain.Vehicle{Name: "x", Year: 1990})
	assert.NoError(t, err)
	assert.Empty(t, records)
}
