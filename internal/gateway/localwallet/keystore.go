package localwallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/securefile"
)

type keyFile struct {
	Schema     int    `json:"schema"`
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

var fileOptions = securefile.Options{AAD: []byte(constants.AADConstant)}

// KeyPath resolves the wallet file location.
func KeyPath() (string, error) {
	return securefile.ResolvePath(constants.AppName, constants.WalletFile)
}

// Create generates a fresh key and stores it encrypted at path.
func Create(path string, password []byte) (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("localwallet: generate key: %w", err)
	}
	return store(path, key, password)
}

// Import stores an existing hex private key encrypted at path.
func Import(path, privateKeyHex string, password []byte) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("localwallet: parse key: %w", err)
	}
	return store(path, key, password)
}

func store(path string, key *ecdsa.PrivateKey, password []byte) (common.Address, error) {
	if securefile.Exists(path) {
		return common.Address{}, fmt.Errorf("localwallet: %s already exists", path)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	kf := keyFile{
		Schema:     constants.SchemaV1,
		Address:    addr.Hex(),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}
	if err := securefile.WriteEncryptedJSON(path, kf, password, fileOptions); err != nil {
		return common.Address{}, fmt.Errorf("localwallet: write key file: %w", err)
	}
	return addr, nil
}

func load(path string, password []byte) (*ecdsa.PrivateKey, common.Address, error) {
	kf, err := securefile.ReadEncryptedJSON[keyFile](path, password, fileOptions)
	if err != nil {
		return nil, common.Address{}, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(kf.PrivateKey, "0x"))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("localwallet: decode key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if !strings.EqualFold(addr.Hex(), kf.Address) {
		return nil, common.Address{}, fmt.Errorf("localwallet: key file address mismatch")
	}
	return key, addr, nil
}
