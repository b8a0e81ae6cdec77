// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	mrand "math/rand"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
)

// DefaultKeyFile is the name of the node key file inside the base path
const DefaultKeyFile = "node.key"

// NodeKey returns the authority's network identity. With a zero seed it
// loads the key persisted under basePath, generating and saving one on
// first use. A non-zero seed derives a deterministic throwaway key, for
// test networks only.
func NodeKey(basePath string, seed int64) (crypto.PrivKey, error) {
	if seed != 0 {
		return generateKey(mrand.New(mrand.NewSource(seed))) //nolint
	}

	key, err := loadKey(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading node key: %w", err)
	}
	if key != nil {
		return key, nil
	}

	logger.Info("generating node identity", "file", filepath.Join(basePath, DefaultKeyFile))

	key, err = generateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	if err = saveKey(key, basePath); err != nil {
		return nil, fmt.Errorf("saving node key: %w", err)
	}
	return key, nil
}

func generateKey(r io.Reader) (crypto.PrivKey, error) {
	key, _, err := crypto.GenerateEd25519Key(r)
	if err != nil {
		return nil, fmt.Errorf("generating node key: %w", err)
	}
	return key, nil
}

// loadKey reads the key file under basePath, returning nil when it does not exist
func loadKey(basePath string) (crypto.PrivKey, error) {
	fp := filepath.Join(filepath.Clean(basePath), DefaultKeyFile)
	if _, err := os.Stat(fp); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadKeyFile(fp)
}

// LoadKeyFile reads a hex-encoded ed25519 private key from the given file
func LoadKeyFile(fp string) (crypto.PrivKey, error) {
	keyData, err := os.ReadFile(filepath.Clean(fp))
	if err != nil {
		return nil, err
	}

	dec := make([]byte, hex.DecodedLen(len(keyData)))
	if _, err = hex.Decode(dec, keyData); err != nil {
		return nil, err
	}
	return crypto.UnmarshalEd25519PrivateKey(dec)
}

func saveKey(key crypto.PrivKey, basePath string) error {
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return err
	}

	raw, err := key.Raw()
	if err != nil {
		return err
	}

	enc := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(enc, raw)

	fp := filepath.Join(filepath.Clean(basePath), DefaultKeyFile)
	return os.WriteFile(fp, enc, 0600)
}
