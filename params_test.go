package vortex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Insert_LocalOverwriteSemantics(t *testing.T) {
	p := NewParams()
	p.Insert("k", "first", true)
	p.Insert("k", "second", false)
	v, present := p.Get("k")
	require.True(t, present)
	assert.Equal(t, "first", v)

	p.Insert("k", "third", true)
	v, _ = p.Get("k")
	assert.Equal(t, "third", v)
}

func TestParams_Get_LocalTakesPrecedenceOverSharedSet(t *testing.T) {
	shared := NewParams()
	shared.Insert("k", "from-shared", true)

	p := NewParams()
	p.AttachSharedSet(shared)
	p.Insert("k", "from-local", true)

	v, _ := p.Get("k")
	assert.Equal(t, "from-local", v)
}

func TestParams_Get_FallsBackToFirstMatchingSharedSetInAttachmentOrder(t *testing.T) {
	first := NewParams()
	first.Insert("k", "from-first", true)
	second := NewParams()
	second.Insert("k", "from-second", true)

	p := NewParams()
	p.AttachSharedSet(first)
	p.AttachSharedSet(second)

	v, present := p.Get("k")
	require.True(t, present)
	assert.Equal(t, "from-first", v)
}

func TestGetTyped_ParsesEachSupportedType(t *testing.T) {
	p := NewParams()
	p.Insert("i", "42", true)
	p.Insert("f", "3.5", true)
	p.Insert("b", "true", true)
	p.Insert("s", "hello", true)

	assert.Equal(t, 42, GetTyped(p, "i", 0))
	assert.Equal(t, 3.5, GetTyped(p, "f", 0.0))
	assert.Equal(t, true, GetTyped(p, "b", false))
	assert.Equal(t, "hello", GetTyped(p, "s", ""))
}

func TestGetTyped_ReturnsDefaultOnMissingOrUnparsable(t *testing.T) {
	p := NewParams()
	p.Insert("bad", "not-an-int", true)

	assert.Equal(t, 7, GetTyped(p, "missing", 7))
	assert.Equal(t, 7, GetTyped(p, "bad", 7))
}

func TestParams_MarkAsSharedSet_RoundTripsName(t *testing.T) {
	p := NewParams()
	p.MarkAsSharedSet("nic-defaults")
	name, present := p.SharedSetName()
	require.True(t, present)
	assert.Equal(t, "nic-defaults", name)
}

func TestParams_GetScoped_StripsPrefixAndFiltersKeys(t *testing.T) {
	p := NewParams()
	p.Insert("nic.bandwidth", "1000", true)
	p.Insert("nic.mtu", "1500", true)
	p.Insert("other.thing", "x", true)

	scoped := p.GetScoped("nic")
	bw, present := scoped.Get("bandwidth")
	require.True(t, present)
	assert.Equal(t, "1000", bw)
	_, present = scoped.Get("thing")
	assert.False(t, present)
}

func TestParams_Keys_DeduplicatesAcrossSharedSets(t *testing.T) {
	shared := NewParams()
	shared.Insert("a", "1", true)
	shared.Insert("b", "2", true)

	p := NewParams()
	p.AttachSharedSet(shared)
	p.Insert("a", "override", true)

	keys := p.Keys()
	count := 0
	for _, k := range keys {
		if k == "a" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Contains(t, keys, "b")
}

func TestParams_DumpAll_IncludesLocalAndSharedSections(t *testing.T) {
	shared := NewParams()
	shared.Insert("shared-key", "v", true)

	p := NewParams()
	p.AttachSharedSet(shared)
	p.Insert("local-key", "v", true)

	var buf strings.Builder
	p.DumpAll(&buf, "")
	out := buf.String()
	assert.Contains(t, out, "local-key")
	assert.Contains(t, out, "shared-key")
}

func TestParams_Get_WarnsOnUndocumentedKeyWhenVerifying(t *testing.T) {
	p := NewParams()
	p.SetVerify(true)
	p.SetAllowedKeys([]string{"known"})

	var warned string
	old := warnUndocumentedKey
	warnUndocumentedKey = func(key string) { warned = key }
	defer func() { warnUndocumentedKey = old }()

	p.Get("unknown")
	assert.Equal(t, "unknown", warned)
}
