package metricspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MinimumNames(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		names   []string
		wantErr bool
	}{
		{name: "count with two", mode: Count, names: []string{"B", "E"}, wantErr: true},
		{name: "count with three", mode: Count, names: []string{"B", "X", "E"}},
		{name: "latency with one", mode: Latency, names: []string{"A"}, wantErr: true},
		{name: "latency with two", mode: Latency, names: []string{"A", "B"}},
		{name: "timeslot with none", mode: Timeslot, names: nil, wantErr: true},
		{name: "timeslot with one", mode: Timeslot, names: []string{"A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.mode, tt.names)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrTooFewNames)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNew_Duplicate(t *testing.T) {
	_, err := New(Latency, []string{"sched:a", "sched__a"})
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestNew_EmptyName(t *testing.T) {
	_, err := New(Latency, []string{"A", " "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestNew_UnknownMode(t *testing.T) {
	_, err := New(Mode(42), []string{"A", "B"})
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestMetrics_Count(t *testing.T) {
	s, err := New(Count, []string{"B", "X", "Y", "E"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, s.Metrics())
}

func TestMetrics_Latency(t *testing.T) {
	s, err := New(Latency, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A -> B", "B -> C", "total"}, s.Metrics())
}

func TestMetrics_Timeslot(t *testing.T) {
	s, err := New(Timeslot, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, s.Metrics())
}

func TestIndex_CanonicalSpelling(t *testing.T) {
	s, err := New(Latency, []string{"irq:irq_handler_entry", "irq:irq_handler_exit"})
	require.NoError(t, err)

	i, ok := s.Index("irq__irq_handler_exit")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = s.Index("irq:irq_handler_entry")
	require.True(t, ok)
	assert.Equal(t, 0, i)

	_, ok = s.Index("sched__sched_switch")
	assert.False(t, ok)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Latency")
	require.NoError(t, err)
	assert.Equal(t, Latency, m)

	m, err = ParseMode("count_between")
	require.NoError(t, err)
	assert.Equal(t, Count, m)

	_, err = ParseMode("histogram")
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestMetrics_ReturnsCopy(t *testing.T) {
	s, err := New(Timeslot, []string{"A"})
	require.NoError(t, err)

	m := s.Metrics()
	m[0] = "mutated"
	assert.Equal(t, []string{"A"}, s.Metrics())
}
