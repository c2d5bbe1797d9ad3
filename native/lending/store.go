package lending

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"foxylend/crypto"
	"foxylend/storage"
)

const (
	paramsKey          = "lending/params"
	offerIndexKey      = "lending/offer-index"
	offerPrefix        = "lending/offer/"
	ownerPrefix        = "lending/owner/"
	borrowerPrefix     = "lending/borrower/"
	collectionPrefix   = "lending/collection/"
	offerKeyFormat     = offerPrefix + "%05d"
	collectionKeyFmt   = collectionPrefix + "%05d"
	accountIndexFormat = "%s%s/%05d"
)

var indexMarker = []byte{1}

type storedParams struct {
	Admin         string
	InterestSplit uint64
	Denom         string
	Custodian     string
}

type storedOffer struct {
	ID           uint64
	Owner        string
	Amount       []byte
	StartTime    uint64
	CollectionID uint64
	TokenID      string
	Accepted     bool
	Borrower     string
}

type storedCollection struct {
	ID         uint64
	Name       string
	FloorPrice []byte
	APY        uint64
	MaxTime    uint64
	Contract   string
}

func offerKey(id uint16) []byte { return []byte(fmt.Sprintf(offerKeyFormat, id)) }

func collectionKey(id uint16) []byte { return []byte(fmt.Sprintf(collectionKeyFmt, id)) }

func accountPrefix(base string, addr crypto.Address) []byte {
	return []byte(base + addr.String() + "/")
}

func accountIndexKey(base string, addr crypto.Address, id uint16) []byte {
	return []byte(fmt.Sprintf(accountIndexFormat, base, addr.String(), id))
}

func encodeAddress(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

// store maps the lending records onto a key-value backend. During an
// operation the backend is a storage.Txn so every write lands in one batch.
type store struct {
	kv storage.KeyValueStore
}

func newStore(kv storage.KeyValueStore) *store { return &store{kv: kv} }

func (s *store) getRLP(key []byte, out interface{}) (bool, error) {
	raw, err := s.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("lending: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *store) putRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.kv.Put(key, encoded)
}

func (s *store) params() (*Params, error) {
	var stored storedParams
	ok, err := s.getRLP([]byte(paramsKey), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialised
	}
	admin, err := crypto.DecodeAddress(stored.Admin)
	if err != nil {
		return nil, fmt.Errorf("lending: decode admin: %w", err)
	}
	custodian, err := crypto.DecodeAddress(stored.Custodian)
	if err != nil {
		return nil, fmt.Errorf("lending: decode custodian: %w", err)
	}
	return &Params{
		Admin:         admin,
		InterestSplit: stored.InterestSplit,
		Denom:         stored.Denom,
		Custodian:     custodian,
	}, nil
}

func (s *store) hasParams() (bool, error) {
	return s.kv.Has([]byte(paramsKey))
}

func (s *store) putParams(p *Params) error {
	return s.putRLP([]byte(paramsKey), storedParams{
		Admin:         encodeAddress(p.Admin),
		InterestSplit: p.InterestSplit,
		Denom:         p.Denom,
		Custodian:     encodeAddress(p.Custodian),
	})
}

func (s *store) lastOfferIndex() (uint16, error) {
	var last uint64
	ok, err := s.getRLP([]byte(offerIndexKey), &last)
	if err != nil || !ok {
		return 0, err
	}
	return uint16(last), nil
}

func (s *store) putLastOfferIndex(id uint16) error {
	return s.putRLP([]byte(offerIndexKey), uint64(id))
}

func (s *store) offer(id uint16) (*Offer, error) {
	var stored storedOffer
	ok, err := s.getRLP(offerKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return decodeOffer(&stored)
}

func decodeOffer(stored *storedOffer) (*Offer, error) {
	owner, err := crypto.DecodeAddress(stored.Owner)
	if err != nil {
		return nil, fmt.Errorf("lending: decode offer owner: %w", err)
	}
	borrower, err := crypto.DecodeAddress(stored.Borrower)
	if err != nil {
		return nil, fmt.Errorf("lending: decode offer borrower: %w", err)
	}
	return &Offer{
		ID:           uint16(stored.ID),
		Owner:        owner,
		Amount:       new(uint256.Int).SetBytes(stored.Amount),
		StartTime:    stored.StartTime,
		CollectionID: uint16(stored.CollectionID),
		TokenID:      stored.TokenID,
		Accepted:     stored.Accepted,
		Borrower:     borrower,
	}, nil
}

func (s *store) putOffer(o *Offer) error {
	return s.putRLP(offerKey(o.ID), storedOffer{
		ID:           uint64(o.ID),
		Owner:        encodeAddress(o.Owner),
		Amount:       cloneAmount(o.Amount).Bytes(),
		StartTime:    o.StartTime,
		CollectionID: uint64(o.CollectionID),
		TokenID:      o.TokenID,
		Accepted:     o.Accepted,
		Borrower:     encodeAddress(o.Borrower),
	})
}

func (s *store) indexOwner(o *Offer) error {
	return s.kv.Put(accountIndexKey(ownerPrefix, o.Owner, o.ID), indexMarker)
}

func (s *store) indexBorrower(o *Offer) error {
	return s.kv.Put(accountIndexKey(borrowerPrefix, o.Borrower, o.ID), indexMarker)
}

// removeOffer deletes the record together with every index entry pointing at
// it.
func (s *store) removeOffer(o *Offer) error {
	if err := s.kv.Delete(offerKey(o.ID)); err != nil {
		return err
	}
	if err := s.kv.Delete(accountIndexKey(ownerPrefix, o.Owner, o.ID)); err != nil {
		return err
	}
	if o.Accepted && !o.Borrower.IsZero() {
		if err := s.kv.Delete(accountIndexKey(borrowerPrefix, o.Borrower, o.ID)); err != nil {
			return err
		}
	}
	return nil
}

// eachOffer walks offers in ascending id order starting at start. Returning
// false from fn stops the walk.
func (s *store) eachOffer(start uint16, fn func(*Offer) (bool, error)) error {
	it := s.kv.NewIterator([]byte(offerPrefix), offerKey(start))
	defer it.Release()
	for it.Next() {
		var stored storedOffer
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			return fmt.Errorf("lending: decode %s: %w", it.Key(), err)
		}
		offer, err := decodeOffer(&stored)
		if err != nil {
			return err
		}
		more, err := fn(offer)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return it.Error()
}

// eachIndexed walks the ids recorded under an owner or borrower index in
// ascending order.
func (s *store) eachIndexed(base string, addr crypto.Address, fn func(uint16) (bool, error)) error {
	prefix := accountPrefix(base, addr)
	it := s.kv.NewIterator(prefix, nil)
	defer it.Release()
	for it.Next() {
		suffix := bytes.TrimPrefix(it.Key(), prefix)
		id, err := strconv.ParseUint(string(suffix), 10, 16)
		if err != nil {
			return fmt.Errorf("lending: malformed index key %s: %w", it.Key(), err)
		}
		more, err := fn(uint16(id))
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return it.Error()
}

func (s *store) collection(id uint16) (*Collection, error) {
	var stored storedCollection
	ok, err := s.getRLP(collectionKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCollectionNotFound
	}
	return decodeCollection(&stored)
}

func decodeCollection(stored *storedCollection) (*Collection, error) {
	contract, err := crypto.DecodeAddress(stored.Contract)
	if err != nil {
		return nil, fmt.Errorf("lending: decode collection contract: %w", err)
	}
	return &Collection{
		ID:         uint16(stored.ID),
		Name:       stored.Name,
		FloorPrice: new(uint256.Int).SetBytes(stored.FloorPrice),
		APY:        uint16(stored.APY),
		MaxTime:    stored.MaxTime,
		Contract:   contract,
	}, nil
}

func (s *store) putCollection(c *Collection) error {
	return s.putRLP(collectionKey(c.ID), storedCollection{
		ID:         uint64(c.ID),
		Name:       c.Name,
		FloorPrice: cloneAmount(c.FloorPrice).Bytes(),
		APY:        uint64(c.APY),
		MaxTime:    c.MaxTime,
		Contract:   encodeAddress(c.Contract),
	})
}

func (s *store) eachCollection(fn func(*Collection) (bool, error)) error {
	it := s.kv.NewIterator([]byte(collectionPrefix), nil)
	defer it.Release()
	for it.Next() {
		var stored storedCollection
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			return fmt.Errorf("lending: decode %s: %w", it.Key(), err)
		}
		collection, err := decodeCollection(&stored)
		if err != nil {
			return err
		}
		more, err := fn(collection)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return it.Error()
}
