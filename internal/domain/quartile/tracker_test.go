package quartile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func record() (*[]Event, func(Event)) {
	var got []Event
	return &got, func(e Event) { got = append(got, e) }
}

func TestTracker_Observe(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		times    []float64
		want     []Event
	}{
		{
			name:     "seek forward catches up in order",
			duration: 40,
			times:    []float64{25},
			want:     []Event{Start, FirstQuartile, Midpoint},
		},
		{
			name:     "backward seek fires nothing",
			duration: 40,
			times:    []float64{25, 12},
			want:     []Event{Start, FirstQuartile, Midpoint},
		},
		{
			name:     "linear progress",
			duration: 100,
			times:    []float64{0, 10, 25, 30, 50, 75, 99, 100, 120},
			want:     []Event{Start, FirstQuartile, Midpoint, ThirdQuartile, Complete},
		},
		{
			name:     "jump straight to end",
			duration: 10,
			times:    []float64{10},
			want:     []Event{Start, FirstQuartile, Midpoint, ThirdQuartile, Complete},
		},
		{
			name:     "negative time is ignored",
			duration: 10,
			times:    []float64{-1},
			want:     nil,
		},
		{
			name:     "zero duration disables",
			duration: 0,
			times:    []float64{0, 5, 10},
			want:     nil,
		},
		{
			name:     "negative duration disables",
			duration: -5,
			times:    []float64{1},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cb := record()
			tr := NewTracker(tt.duration, cb)
			for _, ts := range tt.times {
				tr.Observe(ts)
			}
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestTracker_Fired(t *testing.T) {
	tr := NewTracker(40, nil)
	tr.Observe(25)

	assert.True(t, tr.Fired(Start))
	assert.True(t, tr.Fired(Midpoint))
	assert.False(t, tr.Fired(ThirdQuartile))
	assert.False(t, tr.Fired(Event(42)))
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "start", Start.String())
	assert.Equal(t, "firstQuartile", FirstQuartile.String())
	assert.Equal(t, "midpoint", Midpoint.String())
	assert.Equal(t, "thirdQuartile", ThirdQuartile.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "unknown", Event(9).String())
}
