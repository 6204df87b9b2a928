package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// deterministic encoder: sorted map keys, smallest integer encoding, so the
// same journal entry always produces identical bytes
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// tenant states and ledger statuses travel as text
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// encodes v to CBOR using core deterministic encoding
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// decodes CBOR data into v
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// raw encoded CBOR value, used to defer decoding of event payloads
type RawMessage = cbor.RawMessage
