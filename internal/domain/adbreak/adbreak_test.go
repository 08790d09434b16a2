package adbreak

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOffset(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TimeOffset
		wantErr bool
	}{
		{name: "start", input: "start", want: Start()},
		{name: "end upper case", input: "END", want: End()},
		{name: "clock", input: "00:01:30", want: At(90)},
		{name: "clock with millis", input: "01:00:00.500", want: At(3600.5)},
		{name: "percentage", input: "25%", want: Percent(25)},
		{name: "fractional percentage", input: "12.5%", want: Percent(12.5)},
		{name: "position", input: "#2", want: TimeOffset{Kind: OffsetPosition, Position: 2}},
		{name: "empty", input: "", wantErr: true},
		{name: "percentage over 100", input: "120%", wantErr: true},
		{name: "bad clock", input: "1:30", wantErr: true},
		{name: "bad minutes", input: "00:61:00", wantErr: true},
		{name: "bad position", input: "#0", wantErr: true},
		{name: "garbage", input: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeOffset(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidOffset))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOffset_String(t *testing.T) {
	assert.Equal(t, "start", Start().String())
	assert.Equal(t, "end", End().String())
	assert.Equal(t, "00:01:30.250", At(90.25).String())
	assert.Equal(t, "50%", Percent(50).String())
	assert.Equal(t, "#3", TimeOffset{Kind: OffsetPosition, Position: 3}.String())
}

func TestAdBreak_TrackingURLs(t *testing.T) {
	b := &AdBreak{
		TimeOffset: Start(),
		TrackingEvents: map[string][]string{
			TrackingBreakStart: {"https://t.example/start"},
		},
	}
	assert.Equal(t, []string{"https://t.example/start"}, b.TrackingURLs(TrackingBreakStart))
	assert.Nil(t, b.TrackingURLs(TrackingBreakEnd))

	var nilBreak *AdBreak
	assert.Nil(t, nilBreak.TrackingURLs(TrackingBreakStart))
	assert.Equal(t, "<nil>", nilBreak.String())
}
