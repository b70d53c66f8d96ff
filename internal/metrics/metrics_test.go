package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveExport(t *testing.T) {
	okBefore := testutil.ToFloat64(ExportsTotal.WithLabelValues(ResultOK))
	errBefore := testutil.ToFloat64(ExportsTotal.WithLabelValues(ResultError))
	eventsBefore := testutil.ToFloat64(EventsExported)

	ObserveExport(time.Now(), 3, nil)
	ObserveExport(time.Now(), 5, errors.New("disk full"))
	ObserveSkipped()

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ExportsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(ExportsTotal.WithLabelValues(ResultError)))
	assert.Equal(t, eventsBefore+3, testutil.ToFloat64(EventsExported))
	assert.GreaterOrEqual(t, testutil.ToFloat64(ExportsTotal.WithLabelValues(ResultSkipped)), 1.0)
	assert.Equal(t, 1, testutil.CollectAndCount(ExportDuration))
}
