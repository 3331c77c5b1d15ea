package latticetypes

// Account is a 256-bit ed25519 public key that identifies one chain.
type Account [HashSize]byte

// ZeroAccount is the sentinel used where "no account" is a valid state,
// e.g. a pending entry's source before it is resolved.
var ZeroAccount = Account{}

func (a Account) IsZero() bool {
	return a == ZeroAccount
}

func (a Account) String() string {
	return Hash(a).String()
}

func (a Account) Bytes() []byte {
	return Hash(a).Bytes()
}

// AsHash reinterprets the account as a Hash, used where the wire format
// shares a 32-byte field between the two (e.g. state block "account" and
// "link" fields).
func (a Account) AsHash() Hash {
	return Hash(a)
}

func AccountFromHash(h Hash) Account {
	return Account(h)
}

func AccountFromBytes(b []byte) (Account, error) {
	h, err := HashFromBytes(b)
	if err != nil {
		return Account{}, err
	}
	return Account(h), nil
}
