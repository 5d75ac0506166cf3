package namecodec

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeStringSpecialCharacters(t *testing.T) {
	value := `- -"-%-&-(-)-*-+-/-:-;-<->-?-[-\-]-|-`
	expected := "-%20-%22-%25-%26-%28-%29-%2a-%2b-%2f-%3a-%3b-%3c-%3e-%3f-%5b-%5c-%5d-%7c-"
	assert.Equal(t, expected, EncodeString(value))

	// The same value reached through an escaped DN string.
	rdn, err := dn.ParseRDN(`cn=- -"-%-&-(-)-*-\+-/-:-\;-\<-\>-?-[-\\-]-|-`)
	require.NoError(t, err)
	assert.Equal(t, "cn="+expected, Encode(rdn))
}

func TestEncodeStringControlCharacters(t *testing.T) {
	var in strings.Builder
	var want strings.Builder
	for c := 0; c < 0x20; c++ {
		in.WriteByte(byte(c))
		want.WriteString("%" + string(hexDigits[c>>4]) + string(hexDigits[c&0x0f]))
	}
	in.WriteByte(0x7f)
	want.WriteString("%7f")

	got := EncodeString(in.String())
	assert.Equal(t, want.String(), got)
	assert.True(t, strings.HasPrefix(got, "%00%01"))
	assert.True(t, strings.HasSuffix(got, "%1e%1f%7f"))
}

func TestEncodeLowerCases(t *testing.T) {
	assert.Equal(t, "ou=people", Encode(dn.NewRDN("OU", "People")))
	assert.Equal(t, "cn=john%20smith", Encode(dn.NewRDN("cn", "John Smith")))
}

func TestEncodeMultiValuedRDN(t *testing.T) {
	a, err := dn.ParseRDN("sn=Smith+cn=John")
	require.NoError(t, err)
	b, err := dn.ParseRDN("CN=john+SN=smith")
	require.NoError(t, err)

	assert.Equal(t, "cn=john%2bsn=smith", Encode(a))
	assert.Equal(t, Encode(a), Encode(b), "AVA order does not matter")
	assert.NotContains(t, Encode(a), "+")
	assert.Equal(t, "cn=john%2bsn=smith.ldif", FileName(a))
}

func TestEncodeDN(t *testing.T) {
	assert.Equal(t, "dc=example,dc=com", EncodeDN(dn.MustParse("DC=Example,DC=com")))
	assert.Equal(t, "", EncodeDN(dn.DN{}))
}

func TestEncodeIsDeterministicAndPathSafe(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		raw := make([]byte, 1+rng.Intn(24))
		for j := range raw {
			raw[j] = byte(rng.Intn(0x80))
		}
		rdn := dn.NewRDN("cn", string(raw))

		seg := Encode(rdn)
		assert.Equal(t, seg, Encode(rdn))
		assert.Equal(t, strings.ToLower(seg), seg)
		for k := 0; k < len(seg); k++ {
			c := seg[k]
			assert.False(t, c != '%' && mustEscape(c), "unescaped %q in %q", c, seg)
		}
		assert.Equal(t, strings.ToLower(string(raw)), DecodeString(strings.TrimPrefix(seg, "cn=")))
	}
}

func TestDecodeString(t *testing.T) {
	assert.Equal(t, "a b+c", DecodeString("a%20b%2bc"))
	assert.Equal(t, "100%", DecodeString("100%"))
	assert.Equal(t, "%zz", DecodeString("%zz"))
	assert.Equal(t, "plain", DecodeString("plain"))
}
