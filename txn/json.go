package txn

import (
	"bytes"
	"encoding/json"

	"xdao.co/pqdag/model"
)

// jsonRecord is the flat text framing of a signed transaction. It is a
// presentation format only; hashes and signatures always use the canonical
// CBOR encoding.
type jsonRecord struct {
	Parents   []string `json:"parents"`
	Sender    string   `json:"sender"`
	Timestamp uint64   `json:"timestamp"`
	Amount    uint64   `json:"amount"`
	Receiver  string   `json:"receiver"`
	Signature string   `json:"signature,omitempty"`
}

func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonRecord{
		Parents:   t.Parents(),
		Sender:    t.sender,
		Timestamp: t.timestamp,
		Amount:    t.amount,
		Receiver:  t.receiver,
	})
}

func (s *SignedTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonRecord{
		Parents:   s.tx.Parents(),
		Sender:    s.tx.sender,
		Timestamp: s.tx.timestamp,
		Amount:    s.tx.amount,
		Receiver:  s.tx.receiver,
		Signature: s.signature,
	})
}

func (s *SignedTransaction) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var r jsonRecord
	if err := dec.Decode(&r); err != nil {
		return model.Wrap(model.KindDecoding, "DAG-TX-101", "invalid transaction JSON", err)
	}
	if r.Signature == "" {
		return model.New(model.KindDecoding, "DAG-TX-102", "missing signature")
	}
	*s = SignedTransaction{
		tx: Transaction{
			parents:   append([]string{}, r.Parents...),
			sender:    r.Sender,
			timestamp: r.Timestamp,
			amount:    r.Amount,
			receiver:  r.Receiver,
		},
		signature: r.Signature,
	}
	return nil
}

// ParseJSON decodes the text framing of a signed transaction.
func ParseJSON(data []byte) (*SignedTransaction, error) {
	var s SignedTransaction
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarshalIndent pretty-prints a signed transaction for humans.
func MarshalIndent(s *SignedTransaction) ([]byte, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
