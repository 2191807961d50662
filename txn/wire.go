package txn

import "xdao.co/pqdag/codec"

// wireTransaction is the canonical array layout:
//
//	[parents, sender, timestamp, amount, receiver]
type wireTransaction struct {
	codec.StructAsArray
	Parents   []string
	Sender    string
	Timestamp uint64
	Amount    uint64
	Receiver  string
}

// wireSigned is the canonical array layout: [transaction, signature].
type wireSigned struct {
	codec.StructAsArray
	Transaction wireTransaction
	Signature   string
}

func (t *Transaction) wire() wireTransaction {
	return wireTransaction{
		Parents:   t.parents,
		Sender:    t.sender,
		Timestamp: t.timestamp,
		Amount:    t.amount,
		Receiver:  t.receiver,
	}
}

func fromWire(w wireTransaction) Transaction {
	return Transaction{
		parents:   append([]string{}, w.Parents...),
		sender:    w.Sender,
		timestamp: w.Timestamp,
		amount:    w.Amount,
		receiver:  w.Receiver,
	}
}

// DecodeTransaction parses canonical payload bytes.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var w wireTransaction
	if err := codec.Canonical(data, &w); err != nil {
		return nil, err
	}
	t := fromWire(w)
	return &t, nil
}
