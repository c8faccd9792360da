package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cferrors "github.com/bavix/camfleet/internal/errors"
	"github.com/bavix/camfleet/internal/inventory"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pre  inventory.Snapshot
		post inventory.Snapshot
		want map[string][]string
	}{
		{
			name: "one new file",
			pre:  inventory.Snapshot{"d1": {"a", "b"}},
			post: inventory.Snapshot{"d1": {"a", "b", "c"}},
			want: map[string][]string{"d1": {"c"}},
		},
		{
			name: "deletions are not new files",
			pre:  inventory.Snapshot{"d1": {"a"}},
			post: inventory.Snapshot{"d1": {}},
			want: map[string][]string{"d1": {}},
		},
		{
			name: "deletion plus addition reports only the addition",
			pre:  inventory.Snapshot{"d1": {"a", "b"}},
			post: inventory.Snapshot{"d1": {"b", "c"}},
			want: map[string][]string{"d1": {"c"}},
		},
		{
			name: "post ordering preserved",
			pre:  inventory.Snapshot{"d1": {"b"}},
			post: inventory.Snapshot{"d1": {"z", "b", "a"}},
			want: map[string][]string{"d1": {"z", "a"}},
		},
		{
			name: "two cameras",
			pre:  inventory.Snapshot{"d1": {"G1.mp4"}, "d2": {"G2.mp4"}},
			post: inventory.Snapshot{"d1": {"G1.mp4", "G3.mp4"}, "d2": {"G2.mp4"}},
			want: map[string][]string{"d1": {"G3.mp4"}, "d2": {}},
		},
		{
			name: "camera gone in post is simply absent",
			pre:  inventory.Snapshot{"d1": {"a"}, "d2": {"b"}},
			post: inventory.Snapshot{"d1": {"a"}},
			want: map[string][]string{"d1": {}},
		},
		{
			name: "empty snapshots",
			pre:  inventory.Snapshot{},
			post: inventory.Snapshot{},
			want: map[string][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := inventory.Diff(tt.pre, tt.post)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiffReportsMissingBaseline(t *testing.T) {
	t.Parallel()

	pre := inventory.Snapshot{"d1": {"a"}}
	post := inventory.Snapshot{
		"d1": {"a", "b"},
		"d2": {"x"},
		"d3": {"y"},
	}

	got, err := inventory.Diff(pre, post)

	// The inconsistency is surfaced, not swallowed, and does not take the
	// consistent camera down with it.
	require.Error(t, err)
	assert.ErrorIs(t, err, cferrors.ErrInventoryInconsistency)
	assert.Contains(t, err.Error(), "d2")
	assert.Contains(t, err.Error(), "d3")

	assert.Equal(t, map[string][]string{"d1": {"b"}}, got)
}
