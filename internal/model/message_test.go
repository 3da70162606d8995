package model

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsJSON(t *testing.T) {
	fs := Flags(0).With(FlagRecent).With(FlagSeen).With(FlagDraft)

	data, err := json.Marshal(fs)
	require.NoError(t, err)
	assert.JSONEq(t, `["seen","draft","recent"]`, string(data))

	var back Flags
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, fs, back)

	assert.Error(t, json.Unmarshal([]byte(`["seen","bogus"]`), &back))
}

func TestEmptyFlagsMarshalAsEmptyArray(t *testing.T) {
	data, err := json.Marshal(Flags(0))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestFlagsNamesProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("names decode to the same set", prop.ForAll(
		func(bits uint8) bool {
			fs := Flags(bits & 0x3f)
			data, err := json.Marshal(fs)
			if err != nil {
				return false
			}
			var back Flags
			return json.Unmarshal(data, &back) == nil && back == fs
		},
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func TestHeadersOrderAndMultiValues(t *testing.T) {
	h := NewHeaders()
	h.Add("Received", "from a")
	h.Add("Subject", "Hi")
	h.Add("Received", "from b")

	assert.Equal(t, []string{"Received", "Subject"}, h.Names())
	assert.Equal(t, []string{"from a", "from b"}, h.Values("Received"))
	assert.Equal(t, "from a", h.Get("Received"))
	assert.Equal(t, "", h.Get("Missing"))
	assert.Equal(t, 2, h.Len())

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `{"Received":["from a","from b"],"Subject":"Hi"}`, string(data))

	back := NewHeaders()
	require.NoError(t, json.Unmarshal(data, back))
	assert.Equal(t, h.Names(), back.Names())
	assert.Equal(t, h.Values("Received"), back.Values("Received"))
}

func TestHeadersUnmarshalRejectsNonObject(t *testing.T) {
	h := NewHeaders()
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), h))
	assert.Error(t, json.Unmarshal([]byte(`{"A":1}`), h))
}

func TestHeadersUnmarshalRejectsBadKeys(t *testing.T) {
	for _, in := range []string{`{1:"a"}`, `{"A":"x",`, `{null:"a"}`} {
		h := NewHeaders()
		assert.Error(t, h.UnmarshalJSON([]byte(in)), in)
	}
}

func TestZeroHeadersAdd(t *testing.T) {
	var h Headers
	h.Add("X", "1")
	assert.Equal(t, "1", h.Get("X"))
}

func TestAddressString(t *testing.T) {
	name := "Ann"
	empty := ""
	assert.Equal(t, "Ann <ann@a.test>", Address{DisplayName: &name, Address: "ann@a.test"}.String())
	assert.Equal(t, "ann@a.test", Address{DisplayName: &empty, Address: "ann@a.test"}.String())
	assert.Equal(t, "ann@a.test", Address{Address: "ann@a.test"}.String())
}

func TestAddressJSONKeepsNullDisplayName(t *testing.T) {
	data, err := json.Marshal(Address{Address: "ann@a.test"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"display_name":null,"address":"ann@a.test"}`, string(data))
}

func TestSearchCriteriaIsEmpty(t *testing.T) {
	assert.True(t, SearchCriteria{}.IsEmpty())
	assert.False(t, SearchCriteria{Unseen: true}.IsEmpty())
}
