package ledger

import "sort"

// Wallet is a read-only copy of an account: its balance and the hashes of
// every transaction applied to it, sorted.
type Wallet struct {
	Balance uint64   `json:"balance"`
	History []string `json:"history"`
}

type wallet struct {
	balance uint64
	history map[string]struct{}
}

func newWallet() *wallet {
	return &wallet{history: make(map[string]struct{})}
}

func (w *wallet) seen(hash string) bool {
	if w == nil {
		return false
	}
	_, ok := w.history[hash]
	return ok
}

func (w *wallet) export() Wallet {
	h := make([]string, 0, len(w.history))
	for k := range w.history {
		h = append(h, k)
	}
	sort.Strings(h)
	return Wallet{Balance: w.balance, History: h}
}

// Receipt describes an applied transaction and the resulting balances.
type Receipt struct {
	Hash            string   `json:"hash"`
	Sender          string   `json:"sender"`
	Receiver        string   `json:"receiver"`
	Amount          uint64   `json:"amount"`
	Parents         []string `json:"parents"`
	SenderBalance   uint64   `json:"sender_balance"`
	ReceiverBalance uint64   `json:"receiver_balance"`
}
