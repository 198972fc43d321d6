package index

import (
	"encoding/json"
	"fmt"
)

// Posting is one (document, term frequency) entry in a term's postings list.
// It is encoded on the wire as a two-element array: ["doc", 3].
type Posting struct {
	DocID     string
	Frequency int
}

type PostingList []Posting

// DocStats summarises one indexed document.
type DocStats struct {
	DocID     string `json:"doc_id"`
	DocLen    int    `json:"length"`
	TermCount int    `json:"terms"`
}

func (p Posting) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.DocID, p.Frequency})
}

func (p *Posting) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding posting: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decoding posting: expected [doc, frequency], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.DocID); err != nil {
		return fmt.Errorf("decoding posting document: %w", err)
	}
	if err := json.Unmarshal(pair[1], &p.Frequency); err != nil {
		return fmt.Errorf("decoding posting frequency: %w", err)
	}
	return nil
}
