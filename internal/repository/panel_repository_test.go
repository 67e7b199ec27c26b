package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTriggerInsertPlaceholders(t *testing.T) {
	got := triggerInsertPlaceholders(2)
	parts := strings.Split(got, ",")
	require.Len(t, parts, triggerInsertCount)
	require.Equal(t, "$2", parts[0])
	require.Equal(t, "$29", parts[len(parts)-1])

	cols := strings.Split(triggerInsertColumns, ",")
	require.Len(t, cols, triggerInsertCount)
}

func TestDurationSecondsRoundTrip(t *testing.T) {
	d := 90 * time.Second
	secs := durationSeconds(&d)
	require.NotNil(t, secs)
	require.Equal(t, 90, *secs)

	back := secondsDuration(secs)
	require.NotNil(t, back)
	require.Equal(t, d, *back)
}

func TestDurationSecondsNilAndZero(t *testing.T) {
	require.Nil(t, durationSeconds(nil))

	zero := time.Duration(0)
	require.Nil(t, durationSeconds(&zero))

	require.Nil(t, secondsDuration(nil))
}

func TestNullableText(t *testing.T) {
	require.Nil(t, nullableText(""))
	require.Equal(t, "cat-1", nullableText("cat-1"))
}
