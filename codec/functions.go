package codec

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/totegamma/bookshelf/internal/domain"
)

// MarkerLength is the length of the encoding-scheme tag ("0x") in front of the hex payload.
const MarkerLength = 2

// Encode returns the on-chain wire form of text: marker followed by the hex of its UTF-8 bytes.
func Encode(text string) string {
	return hexutil.Encode([]byte(text))
}

// EncodeBytes returns the bytes handed to the ABI encoder for a bytes argument.
func EncodeBytes(text string) []byte {
	return []byte(text)
}

// Decode strips the marker and decodes the remaining hex as UTF-8 text.
// Empty and marker-only payloads decode to "". Invalid UTF-8 sequences are replaced
// with U+FFFD.
func Decode(payload string) (string, error) {
	if len(payload) <= MarkerLength {
		return "", nil
	}

	b, err := hexutil.Decode("0x" + payload[MarkerLength:])
	if err != nil {
		return "", domain.CodecError{Payload: payload, Err: err}
	}

	return strings.ToValidUTF8(string(b), "�"), nil
}

// DecodeOr decodes payload, returning fallback when it is malformed.
func DecodeOr(payload, fallback string) string {
	text, err := Decode(payload)
	if err != nil {
		return fallback
	}
	return text
}
