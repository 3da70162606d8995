package codec

import (
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/mail"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHeaderText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "Hello world", "Hello world"},
		{"q utf-8", "=?UTF-8?Q?Caf=C3=A9?=", "Café"},
		{"b utf-8", "=?utf-8?B?w6lsw6h2ZQ==?=", "élève"},
		{"iso-8859-1", "=?ISO-8859-1?Q?Gr=FC=DFe?=", "Grüße"},
		{"mixed", "Re: =?UTF-8?Q?na=C3=AFve?= idea", "Re: naïve idea"},
		{"broken base64 kept raw", "=?UTF-8?B?###?=", "=?UTF-8?B?###?="},
		{"unknown charset kept raw", "=?x-nope?Q?abc?=", "=?x-nope?Q?abc?="},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeHeaderText(tt.raw))
		})
	}
}

func TestDecodeHeaderTextIdentityWithoutEncodedWords(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("text without = is unchanged", prop.ForAll(
		func(s string) bool {
			s = strings.ReplaceAll(s, "=", "")
			return DecodeHeaderText(s) == s
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestToAddress(t *testing.T) {
	assert.Nil(t, ToAddress(nil))

	a := ToAddress(&imap.Address{Name: "=?UTF-8?Q?Ren=C3=A9?=", Mailbox: "rene", Host: "example.org"})
	require.NotNil(t, a)
	require.NotNil(t, a.DisplayName)
	assert.Equal(t, "René", *a.DisplayName)
	assert.Equal(t, "rene@example.org", a.Address)

	bare := ToAddress(&imap.Address{Mailbox: "bob", Host: "example.org"})
	require.NotNil(t, bare)
	assert.Nil(t, bare.DisplayName)
	assert.Equal(t, "bob@example.org", bare.Address)
}

func TestToAddressListKeepsNilAndEmptyDistinct(t *testing.T) {
	assert.Nil(t, ToAddressList(nil))

	empty := ToAddressList([]imap.Address{})
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	list := ToAddressList([]imap.Address{
		{Name: "Ann", Mailbox: "ann", Host: "a.test"},
		{Mailbox: "ben", Host: "b.test"},
	})
	require.Len(t, list, 2)
	assert.Equal(t, "Ann <ann@a.test>", list[0].String())
	assert.Equal(t, "ben@b.test", list[1].String())
}

func TestToAddressListSkipsGroupMarkers(t *testing.T) {
	list := ToAddressList([]imap.Address{
		{Mailbox: "undisclosed-recipients"}, // group start
		{Mailbox: "ann", Host: "a.test"},
		{}, // group end
	})
	require.Len(t, list, 1)
	assert.Equal(t, "ann@a.test", list[0].Address)
}

func TestFromMailAddressList(t *testing.T) {
	assert.Nil(t, FromMailAddressList(nil))
	assert.NotNil(t, FromMailAddressList([]*mail.Address{}))

	list := FromMailAddressList([]*mail.Address{
		{Name: "Ann", Address: "ann@a.test"},
		nil,
		{Address: "ben@b.test"},
	})
	require.Len(t, list, 2)
	assert.Equal(t, "Ann", *list[0].DisplayName)
	assert.Nil(t, list[1].DisplayName)
}

func TestBaseContentType(t *testing.T) {
	assert.Equal(t, "text/plain", BaseContentType("Text/Plain; charset=utf-8"))
	assert.Equal(t, "multipart/alternative", BaseContentType(" multipart/alternative ;boundary=x"))
	assert.Equal(t, "image/png", BaseContentType("image/png"))
	assert.Equal(t, "", BaseContentType(""))
	assert.Equal(t, "", BaseContentType("  ; charset=x"))
}

func TestParseHeaderFields(t *testing.T) {
	raw := "Received: from a\r\n" +
		"\tby b\r\n" +
		"Subject: Hello\r\n" +
		"Received: from c\r\n" +
		"garbage line\r\n" +
		"X-Empty:\r\n" +
		"\r\n" +
		"Body-Looking: not a header\r\n"

	fields := ParseHeaderFields([]byte(raw))
	assert.Equal(t, []Field{
		{Name: "Received", Value: "from a by b"},
		{Name: "Subject", Value: "Hello"},
		{Name: "Received", Value: "from c"},
		{Name: "X-Empty", Value: ""},
	}, fields)
}

func TestParseHeaderFieldsWithoutTerminator(t *testing.T) {
	fields := ParseHeaderFields([]byte("A: 1\nB: 2"))
	assert.Equal(t, []Field{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}, fields)
	assert.Empty(t, ParseHeaderFields(nil))
}
