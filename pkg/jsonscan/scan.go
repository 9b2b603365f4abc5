// Package jsonscan collects values found under a given key anywhere in a
// JSON document, in document order. Both the registry and the package
// API return loosely shaped documents, so the audit frequently needs
// "every digest, wherever it is" rather than a fixed structure.
package jsonscan

import (
	"bytes"
	"encoding/json"
)

// Strings returns every string found under a key named key, in document
// order. The scan never fails: malformed input yields whatever was
// collected before the document broke.
func Strings(raw []byte, key string) []string {
	var out []string
	for _, tok := range scan(raw, key) {
		if s, ok := tok.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Numbers returns every integer found under a key named key, in
// document order. Non-integer values are skipped.
func Numbers(raw []byte, key string) []int64 {
	var out []int64
	for _, tok := range scan(raw, key) {
		if n, ok := tok.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				out = append(out, i)
			}
		}
	}
	return out
}

// scan walks the token stream rather than an unmarshalled map, as map
// iteration order would destroy the document order the callers rely on.
func scan(raw []byte, key string) []json.Token {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out []json.Token
	_ = walkValue(dec, key, false, &out)
	return out
}

// walkValue consumes one JSON value from dec. When matched is true the
// value sits under a matched key and its scalars are collected; a
// matched array contributes each of its scalar elements.
func walkValue(dec *json.Decoder, key string, matched bool, out *[]json.Token) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		if matched {
			*out = append(*out, tok)
		}
		return nil
	}

	switch delim {
	case '{':
		for dec.More() {
			k, err := dec.Token()
			if err != nil {
				return err
			}
			name, _ := k.(string)
			if err := walkValue(dec, key, name == key, out); err != nil {
				return err
			}
		}
	case '[':
		for dec.More() {
			if err := walkValue(dec, key, matched, out); err != nil {
				return err
			}
		}
	}

	// consume the closing delimiter
	_, err = dec.Token()
	return err
}
