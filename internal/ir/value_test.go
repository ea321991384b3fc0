package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0xc37cB62C6Ad31842D8ba5c748f972d63C3f60569"

func TestNewIRAddress(t *testing.T) {
	addr, err := NewIRAddress(testWallet)
	require.NoError(t, err)
	assert.Equal(t, IRAddress("0xc37cb62c6ad31842d8ba5c748f972d63c3f60569"), addr)

	_, err = NewIRAddress("invalid_address_123")
	require.Error(t, err)
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		name     string
		value    IRValue
		expected string
	}{
		{"null", IRNull{}, "NULL"},
		{"nil", nil, "NULL"},
		{"int", IRInt(-7), "-7"},
		{"float", IRFloat(12.5), "12.5"},
		{"whole float keeps point", IRFloat(2), "2.0"},
		{"bool", IRBool(true), "true"},
		{"blob", IRBlob{0x01, 0xff}, "0x01ff"},
		{"string", IRString("hi"), "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Display(tt.value))
		})
	}
}

func TestEqual(t *testing.T) {
	addr := IRAddress("0xc37cb62c6ad31842d8ba5c748f972d63c3f60569")

	assert.True(t, Equal(IRInt(3), IRFloat(3)))
	assert.True(t, Equal(addr, IRString(testWallet)))
	assert.True(t, Equal(IRNull{}, nil))
	assert.True(t, Equal(IRBlob{1, 2}, IRBlob{1, 2}))
	assert.True(t, Equal(IRFloat(math.NaN()), IRFloat(math.NaN())))

	assert.False(t, Equal(IRInt(1), IRBool(true)))
	assert.False(t, Equal(IRNull{}, IRInt(0)))
	assert.False(t, Equal(IRString("a"), IRString("A")))
}

func TestFromNative(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected IRValue
	}{
		{"nil", nil, IRNull{}},
		{"int", 5, IRInt(5)},
		{"float", 1.5, IRFloat(1.5)},
		{"bool", false, IRBool(false)},
		{"address promoted", testWallet, IRAddress("0xc37cb62c6ad31842d8ba5c748f972d63c3f60569")},
		{"string", "plain", IRString("plain")},
		{"json int", json.Number("12"), IRInt(12)},
		{"json float", json.Number("1.25"), IRFloat(1.25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromNative(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := FromNative(struct{}{})
	require.Error(t, err)
}

func TestMarshalIRValue(t *testing.T) {
	obj := IRObject{
		"b": IRBlob{0xab},
		"a": IRFloat(0.5),
		"n": IRNull{},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0.5,"b":"0xab","n":null}`, string(data))
	assert.Equal(t, `{"a":0.5,"b":"0xab","n":null}`, string(data))
}

func TestSortedKeysUTF16(t *testing.T) {
	obj := IRObject{"\U0001F600": IRInt(1), "\uffff": IRInt(2), "a": IRInt(3)}
	// U+1F600 encodes as a surrogate pair starting 0xD83D, which sorts before 0xFFFF.
	assert.Equal(t, []string{"a", "\U0001F600", "\uffff"}, obj.SortedKeys())
}
