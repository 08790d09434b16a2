package vmap

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/adbreak/internal/domain/adbreak"
)

func TestParseFile(t *testing.T) {
	doc, err := ParseFile("testdata/sample.xml")
	require.NoError(t, err)
	assert.Equal(t, "1.0", doc.Version)
	require.Len(t, doc.AdBreaks, 4)

	breaks, errs := doc.AdBreaks()
	assert.Empty(t, errs)
	require.Len(t, breaks, 4)

	pre := breaks[0]
	assert.Equal(t, adbreak.Start(), pre.TimeOffset)
	assert.Equal(t, "preroll", pre.BreakID)
	assert.Equal(t, "linear", pre.BreakType)
	assert.Equal(t, "https://ads.example/vast?slot=pre", pre.AdSource.AdTagURI)
	assert.Equal(t, "vast3", pre.AdSource.TemplateType)
	assert.True(t, pre.AdSource.FollowRedirects)
	assert.False(t, pre.AdSource.AllowMultipleAds)
	assert.Equal(t, []string{"https://t.example/break?ev=start&id=pre"}, pre.TrackingURLs(adbreak.TrackingBreakStart))
	assert.Equal(t, []string{"https://t.example/break?ev=end&id=pre"}, pre.TrackingURLs(adbreak.TrackingBreakEnd))

	mid := breaks[1]
	assert.Equal(t, adbreak.At(30), mid.TimeOffset)
	assert.True(t, mid.AdSource.AllowMultipleAds)
	assert.Nil(t, mid.TrackingEvents)

	pct := breaks[2]
	assert.Equal(t, adbreak.Percent(75), pct.TimeOffset)
	assert.Equal(t, `<VAST version="3.0"><Ad id="1"/></VAST>`, pct.AdSource.VASTAdData)
	assert.Empty(t, pct.AdSource.AdTagURI)

	assert.Equal(t, adbreak.End(), breaks[3].TimeOffset)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "not vmap", input: `<VAST version="3.0"/>`, wantErr: ErrNotVMAP},
		{name: "broken xml", input: `<vmap:VMAP><vmap:AdBreak>`, wantErr: ErrParse},
		{name: "no namespace", input: `<VMAP version="1.0"><AdBreak timeOffset="start" breakType="linear"/></VMAP>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.input))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, doc.AdBreaks, 1)
		})
	}
}

func TestAdBreaks_SkipsInvalid(t *testing.T) {
	doc, err := Parse([]byte(`<vmap:VMAP xmlns:vmap="http://www.iab.net/videosuite/vmap" version="1.0">
  <vmap:AdBreak timeOffset="soon" breakType="linear" breakId="bad-offset"/>
  <vmap:AdBreak timeOffset="00:01:00" breakId="no-type"/>
  <vmap:AdBreak timeOffset="#2" breakType="linear" breakId="position"/>
  <vmap:AdBreak timeOffset="00:00:10" breakType="linear" breakId="ok">
    <vmap:TrackingEvents>
      <vmap:Tracking event="breakStart">   </vmap:Tracking>
    </vmap:TrackingEvents>
  </vmap:AdBreak>
</vmap:VMAP>`))
	require.NoError(t, err)

	breaks, errs := doc.AdBreaks()
	require.Len(t, errs, 2)
	assert.True(t, errors.Is(errs[0], adbreak.ErrInvalidOffset))
	assert.True(t, errors.Is(errs[1], ErrBreakField))

	require.Len(t, breaks, 2)
	assert.Equal(t, adbreak.OffsetPosition, breaks[0].TimeOffset.Kind)
	assert.Equal(t, "ok", breaks[1].BreakID)
	assert.Nil(t, breaks[1].TrackingEvents, "blank tracking URLs are ignored")
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile("testdata/does-not-exist.xml")
	assert.Error(t, err)
}
