package infra

import (
	"io/ioutil"
	"time"

	"github.com/osdi23p228/txcommit/pkg/submit"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var (
	itemNotProvidedError = errors.New("No such item")
)

type Node struct {
	Address            string `yaml:"address"`
	TLSCACert          string `yaml:"tlsCACert"`
	TLSCAKey           string `yaml:"tlsCAKey"`
	TLSCARoot          string `yaml:"tlsCARoot"`
	ServerNameOverride string `yaml:"serverNameOverride"`
	TLSCACertByte      []byte `yaml:"-"`
	TLSCAKeyByte       []byte `yaml:"-"`
	TLSCARootByte      []byte `yaml:"-"`
}

type Config struct {
	// Network
	Endorsers []Node `yaml:"endorsers"` // peers
	Committer Node   `yaml:"committer"` // the peer whose commit events are observed
	Orderer   Node   `yaml:"orderer"`   // orderer
	Channel   string `yaml:"channel"`   // default channel when the request names none

	// Chaincode defaults, overridden by the request file
	Chaincode string `yaml:"chaincode"`
	Version   string `yaml:"version"`

	// Client identity
	MSPID      string `yaml:"mspid"`      // the MSP the client belongs
	PrivateKey string `yaml:"privateKey"` // client's private key
	SignCert   string `yaml:"signCert"`   // client's certificate

	CommitTimeout     time.Duration `yaml:"commitTimeout"`     // how long to wait for the commit event
	DialTimeout       time.Duration `yaml:"dialTimeout"`       // how long to wait for a connection
	EndorsementPolicy string        `yaml:"endorsementPolicy"` // first, all or quorum:N

	// If true, print the read set and write set of the endorsed simulation
	CheckRWSet bool `yaml:"checkRWSet"`

	// Bench
	TxNum          int    `yaml:"txNum"`          // number of transactions
	Concurrency    int    `yaml:"concurrency"`    // number of submissions in flight
	Rate           int    `yaml:"rate"`           // average speed of transaction generation, 0 is unlimited
	Burst          int    `yaml:"burst"`          // maximum speed of transaction generation
	LogPath        string `yaml:"logPath"`        // path of the log file
	ReportPath     string `yaml:"reportPath"`     // path of the report file
	MetricsAddress string `yaml:"metricsAddress"` // serve prometheus metrics here while benchmarking

	Policy submit.EndorsementPolicy `yaml:"-"`
}

const (
	defaultDialTimeout = 10 * time.Second
	defaultLogPath     = "log.transactions"
	defaultReportPath  = "report.txt"
)

func LoadConfigFromFile(filename string) (*Config, error) {
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to load %s", filename)
	}
	return LoadConfig(raw)
}

func LoadConfig(raw []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.UnmarshalStrict(raw, c); err != nil {
		return nil, errors.Wrap(err, "fail to unmarshal config")
	}

	for i := range c.Endorsers {
		if err := c.Endorsers[i].loadConfig(); err != nil {
			return nil, err
		}
	}
	if err := c.Committer.loadConfig(); err != nil {
		return nil, err
	}
	if err := c.Orderer.loadConfig(); err != nil {
		return nil, err
	}

	c.setDefaults()
	if err := c.valid(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.CommitTimeout == 0 {
		c.CommitTimeout = submit.DefaultCommitTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.TxNum == 0 {
		c.TxNum = 1
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.Burst == 0 {
		c.Burst = c.Concurrency
	}
	if c.LogPath == "" {
		c.LogPath = defaultLogPath
	}
	if c.ReportPath == "" {
		c.ReportPath = defaultReportPath
	}
}

func (c *Config) valid() error {
	if len(c.Endorsers) == 0 {
		return errors.New("no endorser is configured")
	}
	for i, e := range c.Endorsers {
		if e.Address == "" {
			return errors.Errorf("endorser %d has no address", i)
		}
	}
	if c.Committer.Address == "" {
		return errors.New("committer address is not configured")
	}
	if c.Orderer.Address == "" {
		return errors.New("orderer address is not configured")
	}
	if c.CommitTimeout < 0 {
		return errors.Errorf("commit timeout %s is negative", c.CommitTimeout)
	}
	if c.Rate < 0 {
		return errors.Errorf("rate %d is not a zero (unlimited) or positive number", c.Rate)
	}
	if c.Burst < 1 {
		return errors.Errorf("burst %d is not greater than 1", c.Burst)
	}
	if c.TxNum < 0 || c.Concurrency < 0 {
		return errors.Errorf("txNum %d and concurrency %d must be positive", c.TxNum, c.Concurrency)
	}
	if c.Rate > c.Burst {
		c.Rate = c.Burst
	}

	policy, err := submit.ParseEndorsementPolicy(c.EndorsementPolicy)
	if err != nil {
		return err
	}
	c.Policy = policy
	return nil
}

func GetTLSCACerts(file string) ([]byte, error) {
	if file == "" {
		return nil, itemNotProvidedError
	}

	in, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to load %s", file)
	}

	return in, nil
}

func (n *Node) loadConfig() error {
	certByte, err := GetTLSCACerts(n.TLSCACert)
	if err != nil && err != itemNotProvidedError {
		return errors.WithMessagef(err, "fail to load TLS CA Cert of %s", n.Address)
	}

	keyByte, err := GetTLSCACerts(n.TLSCAKey)
	if err != nil && err != itemNotProvidedError {
		return errors.WithMessagef(err, "fail to load TLS CA Key of %s", n.Address)
	}

	rootByte, err := GetTLSCACerts(n.TLSCARoot)
	if err != nil && err != itemNotProvidedError {
		return errors.WithMessagef(err, "fail to load TLS CA Root of %s", n.Address)
	}

	n.TLSCACertByte = certByte
	n.TLSCAKeyByte = keyByte
	n.TLSCARootByte = rootByte
	return nil
}
