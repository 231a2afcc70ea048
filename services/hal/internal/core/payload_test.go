package core

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"uarthal/errcode"
	"uarthal/types"
)

type testParams struct {
	Bus  string `yaml:"bus"`
	Baud uint32 `yaml:"baud"`
	Flow bool   `yaml:"flow"`
}

func TestAs(t *testing.T) {
	w, code := As[types.UARTWrite](types.UARTWrite{Data: []byte("x")})
	require.Empty(t, code)
	require.Equal(t, []byte("x"), w.Data)

	_, code = As[types.UARTWrite](nil)
	require.Empty(t, code)

	_, code = As[types.UARTWrite](&types.UARTWrite{})
	require.Equal(t, errcode.InvalidPayload, code)
}

func TestDecodeParams_Typed(t *testing.T) {
	in := testParams{Bus: "uart0", Baud: 9600}
	out, err := DecodeParams[testParams](in)
	require.NoError(t, err)
	require.Equal(t, in, out)

	out, err = DecodeParams[testParams](&in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeParams_FromYAML(t *testing.T) {
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte("bus: uart1\nbaud: 57600\nflow: true\n"), &raw))

	out, err := DecodeParams[testParams](raw)
	require.NoError(t, err)
	require.Equal(t, testParams{Bus: "uart1", Baud: 57600, Flow: true}, out)
}

func TestDecodeParams_BadShape(t *testing.T) {
	_, err := DecodeParams[testParams](map[string]any{"baud": "fast"})
	require.ErrorIs(t, err, errcode.InvalidParams)
}
