package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryParams_Validate(t *testing.T) {
	p := QueryParams{}
	errs := Validate(&p)
	assert.Equal(t, "failed on 'required' tag", errs["Query"])

	p.Query = "what is the budget?"
	assert.Empty(t, Validate(&p))
}

func TestHashParams_Validate(t *testing.T) {
	ok := HashParams{Hash: strings.Repeat("ab", 32)}
	assert.Empty(t, Validate(&ok))

	short := HashParams{Hash: "abc"}
	assert.Contains(t, Validate(&short), "Hash")

	notHex := HashParams{Hash: strings.Repeat("zz", 32)}
	assert.Equal(t, "failed on 'hexadecimal' tag", Validate(&notHex)["Hash"])
}

func TestIsComplete(t *testing.T) {
	rec := SummaryRecord{"a": {}, "b": {}}
	assert.True(t, IsComplete(rec, 2))
	assert.True(t, IsComplete(rec, 1))
	assert.False(t, IsComplete(rec, 3))
	assert.True(t, IsComplete(SummaryRecord{}, 0))
	assert.False(t, IsComplete(SummaryRecord{}, -1))
}
