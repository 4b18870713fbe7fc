package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSold(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want bool
	}{
		{"no fields", `{}`, false},
		{"status sold", `{"status":"SOLD"}`, true},
		{"state used when status empty", `{"status":"","state":"sold_out"}`, true},
		{"visibility unavailable", `{"visibility":"Unavailable"}`, true},
		{"sold out with space", `{"status":"sold out"}`, true},
		{"active status", `{"status":"ONSALE"}`, false},
		{"sold flag", `{"sold":true}`, true},
		{"sold flag false", `{"sold":false}`, false},
		{"sold flag as text", `{"sold":"true"}`, false},
		{"available false", `{"available":false}`, true},
		{"available zero", `{"available":0}`, true},
		{"available one", `{"available":1}`, false},
		{"available null", `{"available":null}`, false},
		{"available empty string", `{"available":""}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsSold(mustRaw(t, tc.body)))
		})
	}
}

func TestFilterSold(t *testing.T) {
	t.Parallel()

	t.Run("removes sold records", func(t *testing.T) {
		t.Parallel()
		batch := []Raw{{"title": "a"}, {"title": "b", "sold": true}, {"title": "c"}}
		kept, removed := FilterSold(batch)
		require.Len(t, kept, 2)
		assert.Equal(t, 1, removed)
		assert.Equal(t, "a", kept[0]["title"])
		assert.Equal(t, "c", kept[1]["title"])
	})

	t.Run("all sold keeps everything", func(t *testing.T) {
		t.Parallel()
		batch := []Raw{{"sold": true}, {"status": "sold"}, {"available": false}}
		kept, removed := FilterSold(batch)
		assert.Len(t, kept, 3)
		assert.Equal(t, 3, removed)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		kept, removed := FilterSold(nil)
		assert.Empty(t, kept)
		assert.Zero(t, removed)
	})
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	batch := []Raw{
		mustRaw(t, `{"title":"Keep","slug":"k","pictures":["k.jpg"]}`),
		mustRaw(t, `{"title":"No image","slug":"n"}`),
		mustRaw(t, `{"title":"No url","pictures":["x.jpg"]}`),
		mustRaw(t, `{"title":"Sold","slug":"s","pictures":["s.jpg"],"status":"sold"}`),
	}
	out, report := Prepare(batch)
	require.Len(t, out, 1)
	assert.Equal(t, "Keep", out[0].Title)
	assert.Equal(t, Report{Received: 4, SoldFlag: 1, Incomplete: 2}, report)
	for _, l := range out {
		assert.True(t, l.Complete())
	}
}

func TestPrepareAllSoldGuard(t *testing.T) {
	t.Parallel()

	batch := []Raw{
		mustRaw(t, `{"slug":"a","pictures":["a.jpg"],"sold":true}`),
		mustRaw(t, `{"slug":"b","pictures":["b.jpg"],"available":0}`),
	}
	out, report := Prepare(batch)
	assert.Len(t, out, 2)
	assert.True(t, report.AllSold)
}
