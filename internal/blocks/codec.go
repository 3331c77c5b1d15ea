package blocks

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/latticenode/node/internal/latticetypes"
)

// Encode writes the wire form of b: the 1-byte type prefix, the
// type-specific body, the 64-byte signature, and the work nonce (spec §6
// block serialization table). Legacy variants encode work little-endian;
// state blocks encode it big-endian, matching the wire table exactly.
func Encode(w io.Writer, b Block) error {
	if _, err := w.Write([]byte{byte(b.BlockType())}); err != nil {
		return err
	}
	switch v := b.(type) {
	case *SendBlock:
		if err := writeAll(w, v.PreviousHash[:], v.Destination[:], v.BalanceAfter[:]); err != nil {
			return err
		}
		return writeSigWork(w, v.Sig, v.WorkNonce, false)
	case *ReceiveBlock:
		if err := writeAll(w, v.PreviousHash[:], v.Source[:]); err != nil {
			return err
		}
		return writeSigWork(w, v.Sig, v.WorkNonce, false)
	case *OpenBlock:
		if err := writeAll(w, v.Source[:], v.Representative[:], v.OwnerAccount[:]); err != nil {
			return err
		}
		return writeSigWork(w, v.Sig, v.WorkNonce, false)
	case *ChangeBlock:
		if err := writeAll(w, v.PreviousHash[:], v.Representative[:]); err != nil {
			return err
		}
		return writeSigWork(w, v.Sig, v.WorkNonce, false)
	case *StateBlock:
		if err := writeAll(w, v.Account[:], v.PreviousHash[:], v.Representative[:], v.BalanceAfter[:], v.Link[:]); err != nil {
			return err
		}
		return writeSigWork(w, v.Sig, v.WorkNonce, true)
	default:
		return fmt.Errorf("blocks: Encode: unhandled variant %T", b)
	}
}

func writeAll(w io.Writer, parts ...[]byte) error {
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func writeSigWork(w io.Writer, sig Signature, work Work, workBigEndian bool) error {
	if _, err := w.Write(sig[:]); err != nil {
		return err
	}
	var buf [8]byte
	if workBigEndian {
		binary.BigEndian.PutUint64(buf[:], uint64(work))
	} else {
		binary.LittleEndian.PutUint64(buf[:], uint64(work))
	}
	_, err := w.Write(buf[:])
	return err
}

// Decode reads one block of the given type from r, including its
// signature and work suffix. Callers read the 1-byte type prefix
// themselves (it doubles as the bulk-stream terminator sentinel, spec §6).
func Decode(r io.Reader, t Type) (Block, error) {
	switch t {
	case TypeSend:
		v := &SendBlock{}
		if err := readAll(r, v.PreviousHash[:], v.Destination[:], v.BalanceAfter[:]); err != nil {
			return nil, err
		}
		if err := readSigWork(r, &v.Sig, &v.WorkNonce, false); err != nil {
			return nil, err
		}
		return v, nil
	case TypeReceive:
		v := &ReceiveBlock{}
		if err := readAll(r, v.PreviousHash[:], v.Source[:]); err != nil {
			return nil, err
		}
		if err := readSigWork(r, &v.Sig, &v.WorkNonce, false); err != nil {
			return nil, err
		}
		return v, nil
	case TypeOpen:
		v := &OpenBlock{}
		if err := readAll(r, v.Source[:], v.Representative[:], v.OwnerAccount[:]); err != nil {
			return nil, err
		}
		if err := readSigWork(r, &v.Sig, &v.WorkNonce, false); err != nil {
			return nil, err
		}
		return v, nil
	case TypeChange:
		v := &ChangeBlock{}
		if err := readAll(r, v.PreviousHash[:], v.Representative[:]); err != nil {
			return nil, err
		}
		if err := readSigWork(r, &v.Sig, &v.WorkNonce, false); err != nil {
			return nil, err
		}
		return v, nil
	case TypeState:
		v := &StateBlock{}
		if err := readAll(r, v.Account[:], v.PreviousHash[:], v.Representative[:], v.BalanceAfter[:], v.Link[:]); err != nil {
			return nil, err
		}
		if err := readSigWork(r, &v.Sig, &v.WorkNonce, true); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, ErrUnknownType{Got: byte(t)}
	}
}

func readAll(r io.Reader, parts ...[]byte) error {
	for _, p := range parts {
		if _, err := io.ReadFull(r, p); err != nil {
			return err
		}
	}
	return nil
}

func readSigWork(r io.Reader, sig *Signature, work *Work, workBigEndian bool) error {
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return err
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	if workBigEndian {
		*work = Work(binary.BigEndian.Uint64(buf[:]))
	} else {
		*work = Work(binary.LittleEndian.Uint64(buf[:]))
	}
	return nil
}

// AccountOf returns the account a block belongs to, when known without a
// store lookup: only Open and State blocks carry it on the wire. For the
// other legacy variants callers resolve it via the previous block's
// sideband (see ledger.Ledger.AccountOf).
func AccountOf(b Block) (latticetypes.Account, bool) {
	switch v := b.(type) {
	case *OpenBlock:
		return v.OwnerAccount, true
	case *StateBlock:
		return v.Account, true
	default:
		return latticetypes.Account{}, false
	}
}
