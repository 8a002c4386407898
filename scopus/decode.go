package scopus

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope deckt beide Exportvarianten ab: der Record liegt entweder unter
// "abstracts-retrieval-response" oder direkt auf Top-Level.
type envelope struct {
	Response *Record `json:"abstracts-retrieval-response"`
}

// DecodeFile dekodiert eine Exportdatei. Eine Datei enthält entweder einen
// einzelnen Record (ggf. im Retrieval-Response-Wrapper) oder ein Array
// solcher Objekte.
func DecodeFile(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decode record array: %w", err)
		}
		records := make([]Record, 0, len(raw))
		for i, msg := range raw {
			rec, err := decodeOne(msg)
			if err != nil {
				return nil, fmt.Errorf("decode record %d: %w", i, err)
			}
			records = append(records, rec)
		}
		return records, nil
	}

	rec, err := decodeOne(trimmed)
	if err != nil {
		return nil, err
	}
	return []Record{rec}, nil
}

func decodeOne(data []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Record{}, err
	}
	if env.Response != nil {
		return *env.Response, nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
