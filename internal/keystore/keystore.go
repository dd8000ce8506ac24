// Package keystore implements a durable, process-local,
// non-network-addressable store of per-identity Kyber-512 keypairs,
// built on go.etcd.io/bbolt for embedded durable local state.
package keystore

import (
	"errors"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/wire"
)

// ErrNoKeypair is returned by Get when no keypair has been
// generated for the given identifier. The core never silently
// regenerates: a regenerated keypair would orphan every past share
// addressed to the old public key.
var ErrNoKeypair = apierr.New(apierr.NoKeypair, "no keypair")

var (
	bucketKeys = []byte("keypairs")
)

// Keystore is a durable, serialized-per-identifier Kyber-512 keypair
// store: get(id) -> Option<(Pk, Sk)> and put(id, Pk, Sk).
type Keystore struct {
	db *bbolt.DB

	mu          sync.Mutex
	generating  map[string]*sync.Mutex
}

// Open opens (creating if necessary) the bbolt file at path and ensures
// its bucket exists.
func Open(path string) (*Keystore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKeys)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init keystore bucket: %w", err)
	}

	return &Keystore{db: db, generating: make(map[string]*sync.Mutex)}, nil
}

// Close closes the underlying bbolt file.
func (k *Keystore) Close() error {
	return k.db.Close()
}

// Has reports whether a keypair exists for identifier.
func (k *Keystore) Has(identifier string) (bool, error) {
	var exists bool
	err := k.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKeys)
		exists = b.Get([]byte(identifier)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("keystore has: %w", err)
	}
	return exists, nil
}

// Get returns the keypair stored for identifier, or ErrNoKeypair if none
// exists. The private key never crosses the process boundary — callers of
// this package are trusted client-side code, not the server.
func (k *Keystore) Get(identifier string) (wire.KyberPublicKey, wire.KyberPrivateKey, error) {
	var record []byte
	err := k.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKeys)
		v := b.Get([]byte(identifier))
		if v == nil {
			return ErrNoKeypair
		}
		record = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, err
	}

	if len(record) != wire.KyberPublicKeySize+wire.KyberPrivateKeySize {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, fmt.Errorf("keystore: corrupt record for %q", identifier)
	}
	pub, err := wire.NewKyberPublicKey(record[:wire.KyberPublicKeySize])
	if err != nil {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, err
	}
	priv, err := wire.NewKyberPrivateKey(record[wire.KyberPublicKeySize:])
	if err != nil {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, err
	}
	return pub, priv, nil
}

// Put persists a keypair for identifier, overwriting any existing record.
func (k *Keystore) Put(identifier string, pub wire.KyberPublicKey, priv wire.KyberPrivateKey) error {
	record := make([]byte, 0, wire.KyberPublicKeySize+wire.KyberPrivateKeySize)
	record = append(record, pub[:]...)
	record = append(record, priv[:]...)

	err := k.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKeys)
		return b.Put([]byte(identifier), record)
	})
	if err != nil {
		return fmt.Errorf("keystore put: %w", err)
	}
	return nil
}

// lockFor serializes key generation per identifier so two concurrent
// first-logins for the same identity cannot race two keypairs into
// storage.
func (k *Keystore) lockFor(identifier string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.generating[identifier]
	if !ok {
		l = &sync.Mutex{}
		k.generating[identifier] = l
	}
	return l
}

// GetOrGenerate returns the existing keypair for identifier, generating and
// persisting a new one on first use. generate is injected so this package
// does not import cryptoengine directly.
func (k *Keystore) GetOrGenerate(identifier string, generate func() (wire.KyberPublicKey, wire.KyberPrivateKey, error)) (wire.KyberPublicKey, wire.KyberPrivateKey, bool, error) {
	lock := k.lockFor(identifier)
	lock.Lock()
	defer lock.Unlock()

	pub, priv, err := k.Get(identifier)
	if err == nil {
		return pub, priv, false, nil
	}
	if !errors.Is(err, ErrNoKeypair) {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, false, err
	}

	pub, priv, err = generate()
	if err != nil {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, false, err
	}
	if err := k.Put(identifier, pub, priv); err != nil {
		return wire.KyberPublicKey{}, wire.KyberPrivateKey{}, false, err
	}
	return pub, priv, true, nil
}
