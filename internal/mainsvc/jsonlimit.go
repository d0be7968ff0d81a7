package mainsvc

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/deltadb/deltadb/internal/dberr"
)

// maxJSONDepth bounds object/array nesting depth (spec §7, §9: "a
// recursive parser without a cap violates Internal-error avoidance on
// depth bombs"). No pack library exposes a depth-limiting JSON decoder,
// so this walks the standard library's streaming token reader, which
// already surfaces one token per nesting level without building the
// tree — the cheapest way to enforce a cap without forking the decoder.
const maxJSONDepth = 64

// decodeJSONLimited reads at most limit bytes from r, rejects documents
// deeper than maxJSONDepth, and unmarshals the remainder into v.
func decodeJSONLimited(r io.Reader, limit int64, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return dberr.Wrap(dberr.Internal, "read request body", err)
	}
	if int64(len(body)) > limit {
		return dberr.New(dberr.PayloadTooLarge, "request body exceeds limit")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return dberr.New(dberr.BadInput, "request body must not be empty")
	}

	if err := checkJSONDepth(body, maxJSONDepth); err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return dberr.Wrap(dberr.BadInput, "malformed JSON body", err)
	}
	return nil
}

// checkJSONDepth walks the token stream of body and fails closed if
// object/array nesting ever exceeds max, without allocating a parse
// tree for the rejected document.
func checkJSONDepth(body []byte, max int) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return dberr.Wrap(dberr.BadInput, "malformed JSON body", err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
				if depth > max {
					return dberr.New(dberr.BadInput, "request body nested too deeply")
				}
			case '}', ']':
				depth--
			}
		}
	}
}
