package txn

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pqdag/codec"
	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/model"
	"xdao.co/pqdag/pqsig"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

var fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

type party struct {
	pk pqsig.PublicKey
	sk pqsig.SecretKey
}

func setup(t *testing.T) (*pqsig.Signer, party, party) {
	t.Helper()
	s, err := pqsig.Init().NewSigner("ML-DSA-44", pqsig.WithRand(&deterministicReader{b: 3}))
	require.NoError(t, err)
	apk, ask, err := s.GenerateKeypair()
	require.NoError(t, err)
	bpk, bsk, err := s.GenerateKeypair()
	require.NoError(t, err)
	return s, party{apk, ask}, party{bpk, bsk}
}

func signedTransfer(t *testing.T, s *pqsig.Signer, from, to party, amount uint64, parents ...string) *SignedTransaction {
	t.Helper()
	stx, err := New(parents, from.pk, amount, to.pk, WithClock(fixedClock)).Sign(s, from.sk)
	require.NoError(t, err)
	return stx
}

func TestNew_CapturesFields(t *testing.T) {
	_, a, b := setup(t)
	parents := []string{"p1", "p2"}
	tx := New(parents, a.pk, 100, b.pk, WithClock(fixedClock))

	parents[0] = "mutated"
	assert.Equal(t, []string{"p1", "p2"}, tx.Parents())
	assert.Equal(t, a.pk.String(), tx.Sender())
	assert.Equal(t, b.pk.String(), tx.Receiver())
	assert.Equal(t, uint64(100), tx.Amount())
	assert.Equal(t, uint64(fixedTime.UnixMilli()), tx.Timestamp())
	assert.True(t, tx.Time().Equal(fixedTime))
	assert.False(t, tx.IsGenesis())

	got := tx.Parents()
	got[1] = "mutated"
	assert.Equal(t, []string{"p1", "p2"}, tx.Parents())
}

func TestNew_GenesisHasEmptyParents(t *testing.T) {
	_, a, b := setup(t)
	tx := New(nil, a.pk, 1, b.pk, WithClock(fixedClock))
	assert.True(t, tx.IsGenesis())
	assert.NotNil(t, tx.Parents())

	withNil, err := tx.Bytes()
	require.NoError(t, err)
	withEmpty, err := New([]string{}, a.pk, 1, b.pk, WithClock(fixedClock)).Bytes()
	require.NoError(t, err)
	assert.Equal(t, withEmpty, withNil)
}

func TestTransaction_BytesRoundTrip(t *testing.T) {
	_, a, b := setup(t)
	tx := New([]string{"x"}, a.pk, 42, b.pk, WithClock(fixedClock))
	enc, err := tx.Bytes()
	require.NoError(t, err)

	again, err := tx.Bytes()
	require.NoError(t, err)
	assert.Equal(t, enc, again)

	dec, err := DecodeTransaction(enc)
	require.NoError(t, err)
	assert.True(t, tx.equal(dec))
}

func TestSignVerify_Valid(t *testing.T) {
	s, a, b := setup(t)
	stx := signedTransfer(t, s, a, b, 100)

	v := stx.Verify(s)
	assert.Equal(t, Valid, v.Status)
	assert.True(t, v.OK())
	assert.NoError(t, v.Err)
}

func TestSign_CoversPayloadOnly(t *testing.T) {
	s, a, b := setup(t)
	stx := signedTransfer(t, s, a, b, 100)

	payload, err := stx.Transaction().Bytes()
	require.NoError(t, err)
	sig, err := pqsig.ParseSignature(stx.Signature())
	require.NoError(t, err)

	ok, err := s.Verify(a.pk, payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	full, err := stx.Bytes()
	require.NoError(t, err)
	ok, err = s.Verify(a.pk, full, sig)
	require.NoError(t, err)
	assert.False(t, ok, "signature must not cover the signed record")
}

func TestSign_TwiceBothVerify(t *testing.T) {
	s, a, b := setup(t)
	tx := New(nil, a.pk, 5, b.pk, WithClock(fixedClock))
	s1, err := tx.Sign(s, a.sk)
	require.NoError(t, err)
	s2, err := tx.Sign(s, a.sk)
	require.NoError(t, err)
	assert.True(t, s1.Verify(s).OK())
	assert.True(t, s2.Verify(s).OK())
}

func TestVerify_ForgeryRejected(t *testing.T) {
	s, a, b := setup(t)
	// b signs a payload claiming a as sender.
	forged, err := New(nil, a.pk, 100, b.pk, WithClock(fixedClock)).Sign(s, b.sk)
	require.NoError(t, err)

	v := forged.Verify(s)
	assert.Equal(t, Invalid, v.Status)
	assert.False(t, v.OK())
	assert.NoError(t, v.Err)
}

func TestVerify_TamperRejected(t *testing.T) {
	s, a, b := setup(t)
	stx := signedTransfer(t, s, a, b, 100)

	amount := *stx
	amount.tx.amount = 101
	assert.Equal(t, Invalid, amount.Verify(s).Status)

	receiver := *stx
	receiver.tx.receiver = a.pk.String()
	assert.Equal(t, Invalid, receiver.Verify(s).Status)

	parents := *stx
	parents.tx.parents = []string{"injected"}
	assert.Equal(t, Invalid, parents.Verify(s).Status)
}

func TestVerify_Malformed(t *testing.T) {
	s, a, b := setup(t)
	stx := signedTransfer(t, s, a, b, 100)

	badSender := *stx
	badSender.tx.sender = "%%%"
	v := badSender.Verify(s)
	assert.Equal(t, Malformed, v.Status)
	assert.True(t, model.IsKind(v.Err, model.KindKeyDecode))

	shortSender := *stx
	shortSender.tx.sender = pqsig.PublicKey{1, 2, 3}.String()
	v = shortSender.Verify(s)
	assert.Equal(t, Malformed, v.Status)
	assert.True(t, model.IsKind(v.Err, model.KindKeyDecode))

	badSig := *stx
	badSig.signature = "not base64!"
	v = badSig.Verify(s)
	assert.Equal(t, Malformed, v.Status)
	assert.True(t, model.IsKind(v.Err, model.KindSignatureDecode))

	shortSig := *stx
	shortSig.signature = pqsig.EncodeSignature([]byte{1, 2, 3})
	v = shortSig.Verify(s)
	assert.Equal(t, Malformed, v.Status)
	assert.True(t, model.IsKind(v.Err, model.KindSignatureDecode))
	assert.Contains(t, v.String(), "malformed")
}

func TestHash_DeterministicAndSensitive(t *testing.T) {
	s, a, b := setup(t)
	stx := signedTransfer(t, s, a, b, 100)

	h1 := stx.Hash()
	h2 := stx.Hash()
	require.NotEmpty(t, h1)
	assert.Equal(t, h1, h2)

	enc, err := stx.Bytes()
	require.NoError(t, err)
	assert.Equal(t, hashing.String(enc), h1)

	id, err := stx.ID()
	require.NoError(t, err)
	assert.Equal(t, h1, id.String())

	other := *stx
	other.signature = pqsig.EncodeSignature([]byte("different"))
	assert.NotEqual(t, h1, other.Hash())

	payloadHash := hashing.String(mustBytes(t, stx.Transaction()))
	assert.NotEqual(t, payloadHash, h1, "hash must cover the signature")
}

func mustBytes(t *testing.T, tx *Transaction) []byte {
	t.Helper()
	b, err := tx.Bytes()
	require.NoError(t, err)
	return b
}

func TestDecode_RoundTrip(t *testing.T) {
	s, a, b := setup(t)
	stx := signedTransfer(t, s, a, b, 100, "parent-1", "parent-2")

	enc, err := stx.Bytes()
	require.NoError(t, err)
	dec, err := Decode(enc)
	require.NoError(t, err)

	assert.True(t, stx.Equal(dec))
	assert.Equal(t, stx.Hash(), dec.Hash())
	assert.True(t, dec.Verify(s).OK())
}

func TestDecode_RejectsNonCanonical(t *testing.T) {
	s, a, b := setup(t)
	stx := signedTransfer(t, s, a, b, 7)
	enc, err := stx.Bytes()
	require.NoError(t, err)

	_, err = Decode(append(enc, 0x00))
	assert.True(t, model.IsKind(err, model.KindDecoding))

	_, err = Decode([]byte{0x82, 0x80, 0x60})
	assert.True(t, model.IsKind(err, model.KindDecoding))

	// A map instead of the positional array.
	m, err := codec.Marshal(map[string]string{"signature": stx.Signature()})
	require.NoError(t, err)
	_, err = Decode(m)
	assert.Error(t, err)
}

func TestNewFromParents(t *testing.T) {
	s, a, b := setup(t)
	p1 := signedTransfer(t, s, a, b, 1)
	p2 := signedTransfer(t, s, b, a, 2)

	tx, err := NewFromParents([]*SignedTransaction{p1, p2}, a.pk, 3, b.pk, WithClock(fixedClock))
	require.NoError(t, err)
	assert.Equal(t, []string{p1.Hash(), p2.Hash()}, tx.Parents())
}

func TestJSON_RoundTrip(t *testing.T) {
	s, a, b := setup(t)
	stx := signedTransfer(t, s, a, b, 100, "parent-1")

	raw, err := json.Marshal(stx)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.ElementsMatch(t, []string{"parents", "sender", "timestamp", "amount", "receiver", "signature"}, keys(fields))

	back, err := ParseJSON(raw)
	require.NoError(t, err)
	assert.True(t, stx.Equal(back))
	assert.Equal(t, stx.Hash(), back.Hash())

	pretty, err := MarshalIndent(stx)
	require.NoError(t, err)
	fromPretty, err := ParseJSON(pretty)
	require.NoError(t, err)
	assert.Equal(t, stx.Hash(), fromPretty.Hash(), "pretty printing is cosmetic")
}

func TestJSON_Rejects(t *testing.T) {
	_, err := ParseJSON([]byte(`{"parents":[],"sender":"a","timestamp":1,"amount":1,"receiver":"b"}`))
	assert.True(t, model.IsKind(err, model.KindDecoding))

	_, err = ParseJSON([]byte(`{"sender":"a","signature":"c","extra":true}`))
	assert.True(t, model.IsKind(err, model.KindDecoding))

	_, err = ParseJSON([]byte(`{"amount":-1,"signature":"c"}`))
	assert.Error(t, err)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
