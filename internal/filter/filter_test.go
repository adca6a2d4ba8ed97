package filter

import (
	"testing"

	"github.com/mrzor/cycletrace/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Empty(t *testing.T) {
	f, err := Compile("   ")
	require.NoError(t, err)
	assert.Nil(t, f)

	ok, err := f.Match(event.Event{Name: "anything"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", f.String())
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile(`comm ==`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile filter")
}

func TestCompile_NotBoolean(t *testing.T) {
	_, err := Compile(`pid + 1`)
	require.Error(t, err)
}

func TestCompile_UnknownVariable(t *testing.T) {
	_, err := Compile(`environ["HOME"] == "/root"`)
	require.Error(t, err)
}

func TestMatch(t *testing.T) {
	ev := event.Event{Name: "sched__sched_switch", Source: 2, Pid: 77, Comm: "nginx", Timestamp: 5000}

	tests := []struct {
		expr string
		want bool
	}{
		{expr: `comm == "nginx"`, want: true},
		{expr: `comm == "bash"`, want: false},
		{expr: `cpu in [0, 2]`, want: true},
		{expr: `pid > 100`, want: false},
		{expr: `ts >= 5000 && name startsWith "sched__"`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := f.Match(ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.expr, f.String())
		})
	}
}
