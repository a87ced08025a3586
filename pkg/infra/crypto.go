package infra

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"io/ioutil"

	"github.com/gogo/protobuf/proto"
	"github.com/osdi23p228/fabric-protos-go/msp"
	"github.com/osdi23p228/fabric/bccsp/utils"
	"github.com/osdi23p228/txcommit/pkg/submit"
	"github.com/pkg/errors"
)

const nonceSize = 24

type CryptoConfig struct {
	MSPID    string
	PrivKey  string
	SignCert string
}

// Crypto is the client's signing identity. It implements submit.IdentityContext.
type Crypto struct {
	Creator  []byte
	PrivKey  *ecdsa.PrivateKey
	SignCert *x509.Certificate
}

// LoadCrypto loads the key and certificate of an MSP member from PEM files.
func LoadCrypto(cc CryptoConfig) (*Crypto, error) {
	privateKey, err := GetPrivateKey(cc.PrivKey)
	if err != nil {
		return nil, errors.WithMessage(err, "fail to load private key")
	}

	cert, certBytes, err := GetCertificate(cc.SignCert)
	if err != nil {
		return nil, errors.WithMessage(err, "fail to load certificate")
	}

	id := &msp.SerializedIdentity{
		Mspid:   cc.MSPID,
		IdBytes: certBytes,
	}
	name, err := proto.Marshal(id)
	if err != nil {
		return nil, errors.Wrap(err, "fail to get msp id")
	}

	return &Crypto{
		Creator:  name,
		PrivKey:  privateKey,
		SignCert: cert,
	}, nil
}

func (s *Crypto) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	ri, si, err := ecdsa.Sign(rand.Reader, s.PrivKey, digest[:])
	if err != nil {
		return nil, err
	}

	// peers reject high-S signatures
	si, _, err = utils.ToLowS(&s.PrivKey.PublicKey, si)
	if err != nil {
		return nil, err
	}

	return utils.MarshalECDSASignature(ri, si)
}

func (s *Crypto) Serialize() ([]byte, error) {
	return s.Creator, nil
}

// NewTransactionID draws a fresh nonce, so two calls never share an id.
func (s *Crypto) NewTransactionID() (submit.TransactionID, error) {
	nonce, err := getRandomNonce()
	if err != nil {
		return submit.TransactionID{}, err
	}
	return submit.NewTransactionID(nonce, s.Creator), nil
}

func getRandomNonce() ([]byte, error) {
	key := make([]byte, nonceSize)

	_, err := rand.Read(key)
	if err != nil {
		return nil, errors.Wrap(err, "error getting random bytes")
	}
	return key, nil
}

func GetPrivateKey(f string) (*ecdsa.PrivateKey, error) {
	in, err := ioutil.ReadFile(f)
	if err != nil {
		return nil, err
	}

	k, err := pemToPrivateKey(in)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %s", f)
	}

	key, ok := k.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("expecting ecdsa key in %s", f)
	}
	return key, nil
}

func pemToPrivateKey(raw []byte) (interface{}, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return key, nil
}

func GetCertificate(f string) (*x509.Certificate, []byte, error) {
	in, err := ioutil.ReadFile(f)
	if err != nil {
		return nil, nil, err
	}

	block, _ := pem.Decode(in)
	if block == nil {
		return nil, nil, errors.Errorf("no PEM block found in %s", f)
	}

	c, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to parse certificate %s", f)
	}
	return c, in, nil
}
