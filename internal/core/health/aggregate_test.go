package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Aggregate Tests
// =============================================================================

func TestAggregate_Empty(t *testing.T) {
	assert.Equal(t, StatusUnknown, Aggregate(nil))
}

func TestAggregate_AllHealthy(t *testing.T) {
	assert.Equal(t, StatusHealthy, Aggregate([]Status{StatusHealthy, StatusHealthy}))
}

func TestAggregate_AnyUnhealthyWins(t *testing.T) {
	assert.Equal(t, StatusUnhealthy, Aggregate([]Status{StatusHealthy, StatusUnhealthy, StatusStarting}))
}

func TestAggregate_StartingHoldsBackHealthy(t *testing.T) {
	assert.Equal(t, StatusStarting, Aggregate([]Status{StatusHealthy, StatusStarting}))
}

func TestAggregate_UnknownReadsAsStarting(t *testing.T) {
	assert.Equal(t, StatusStarting, Aggregate([]Status{StatusHealthy, StatusUnknown}))
}

func TestAggregate_NoneDoesNotHoldBack(t *testing.T) {
	assert.Equal(t, StatusHealthy, Aggregate([]Status{StatusHealthy, StatusNone}))
}

func TestAggregate_AllNone(t *testing.T) {
	assert.Equal(t, StatusHealthy, Aggregate([]Status{StatusNone, StatusNone}))
}
