package cui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSanctions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "", want: nil},
		{name: "whitespace_only", raw: " \n\t ", want: nil},
		{name: "semicolons", raw: "Fine;Suspension", want: []string{"Fine", "Suspension"}},
		{name: "newlines_and_trim", raw: " Fine \n Imprisonment\r\n", want: []string{"Fine", "Imprisonment"}},
		{name: "mixed_with_empty_entries", raw: "A;;\nB ; ", want: []string{"A", "B"}},
		{name: "single", raw: "18 USC 1905", want: []string{"18 USC 1905"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, SplitSanctions(tc.raw))
		})
	}
}

func TestSplitSanctions_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Fine;Suspension",
		"  a ;\n b\n\n;c  ",
		"Civil penalty up to $10,000; Criminal penalty",
		"",
	}
	for _, raw := range inputs {
		first := SplitSanctions(raw)
		again := SplitSanctions(JoinSanctions(first))
		assert.Equal(t, first, again, "raw=%q", raw)

		for _, entry := range first {
			assert.Equal(t, []string{entry}, SplitSanctions(entry))
		}
	}
}

func TestPadSanctions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "", ""}, PadSanctions([]string{"a"}, 3))
	assert.Equal(t, []string{"", ""}, PadSanctions(nil, 2))
	assert.Equal(t, []string{"a", "b"}, PadSanctions([]string{"a", "b"}, 1))
}

func TestDataset_PaddingInvariant(t *testing.T) {
	t.Parallel()

	ds := &Dataset{Records: []Record{
		{Category: "A", Sanctions: []string{"s1"}},
		{Category: "A", Sanctions: []string{"s1", "s2"}},
		{Category: "B", Sanctions: []string{"1", "2", "3", "4", "5"}},
		{Category: "C"},
	}}

	require.Equal(t, 5, ds.SanctionWidth())
	for i := range ds.Records {
		padded := ds.PaddedSanctions(i)
		require.Len(t, padded, 5)
		for j := len(ds.Records[i].Sanctions); j < 5; j++ {
			assert.Empty(t, padded[j])
		}
	}
}

func TestDataset_Aggregates(t *testing.T) {
	t.Parallel()

	ds := &Dataset{Records: []Record{
		{Category: "A", Sanctions: []string{"Fine"}},
		{Category: "A"},
		{Category: "B", Sanctions: []string{" "}},
	}}

	assert.Equal(t, map[string]int{"A": 2, "B": 1}, CountsAsMap(ds.CountByCategory()))
	assert.Equal(t, map[string]int{"A": 1}, CountsAsMap(ds.SanctionedByCategory()))
	assert.Equal(t, 3, ds.Total())

	counts := ds.CountByCategory()
	require.Len(t, counts, 2)
	assert.Equal(t, "A", counts[0].Category)
	assert.Equal(t, "B", counts[1].Category)
}

func TestDataset_NilAndEmpty(t *testing.T) {
	t.Parallel()

	var ds *Dataset
	assert.True(t, ds.Empty())
	assert.Zero(t, ds.SanctionWidth())
	assert.Nil(t, ds.CountByCategory())

	assert.True(t, (&Dataset{}).Empty())
	assert.Empty(t, (&Dataset{}).CountByCategory())
}

func TestParseDesignation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Basic, ParseDesignation(" basic "))
	assert.Equal(t, Specified, ParseDesignation("SPECIFIED"))
	assert.Equal(t, Designation("Basic/Specified"), ParseDesignation("Basic/Specified"))
	assert.True(t, strings.EqualFold(string(ParseDesignation("Basic")), "basic"))
}
