package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/osdi23p228/txcommit/pkg/submit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
endorsers:
  - address: peer0.org1.example.com:7051
  - address: peer0.org2.example.com:9051
committer:
  address: peer0.org1.example.com:7051
orderer:
  address: orderer.example.com:7050
channel: mychannel
chaincode: basic
mspid: Org1MSP
privateKey: /tmp/key.pem
signCert: /tmp/cert.pem
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	c, err := LoadConfigFromFile(writeFile(t, "config.yaml", testConfig))
	require.NoError(t, err)

	require.Len(t, c.Endorsers, 2)
	assert.Equal(t, "peer0.org2.example.com:9051", c.Endorsers[1].Address)
	assert.Equal(t, "orderer.example.com:7050", c.Orderer.Address)
	assert.Equal(t, "mychannel", c.Channel)
	assert.Equal(t, "Org1MSP", c.MSPID)

	assert.Equal(t, submit.DefaultCommitTimeout, c.CommitTimeout)
	assert.Equal(t, defaultDialTimeout, c.DialTimeout)
	assert.Equal(t, 1, c.TxNum)
	assert.Equal(t, 1, c.Concurrency)
	assert.Equal(t, 1, c.Burst)
	assert.Equal(t, defaultLogPath, c.LogPath)
	assert.Equal(t, defaultReportPath, c.ReportPath)
	assert.Equal(t, "first", c.Policy.String())
	assert.Nil(t, c.Orderer.TLSCACertByte)
}

func TestLoadConfigOverrides(t *testing.T) {
	raw := testConfig + `
commitTimeout: 5s
endorsementPolicy: quorum:2
concurrency: 8
rate: 100
burst: 50
`
	c, err := LoadConfig([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, c.CommitTimeout)
	assert.Equal(t, "quorum:2", c.Policy.String())
	assert.Equal(t, 8, c.Concurrency)
	assert.Equal(t, 50, c.Burst)
	assert.Equal(t, 50, c.Rate, "rate is capped by burst")
}

func TestLoadConfigLoadsTLSFiles(t *testing.T) {
	ca := writeFile(t, "ca.pem", "---ca---")
	raw := "endorsers: [{address: a}]\ncommitter: {address: a}\n" +
		"orderer:\n  address: o:7050\n  tlsCACert: " + ca + "\n"
	c, err := LoadConfig([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte("---ca---"), c.Orderer.TLSCACertByte)
}

func TestLoadConfigErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		raw string
		err string
	}{
		"unknown field": {
			raw: testConfig + "unknown: 1\n",
			err: "fail to unmarshal config",
		},
		"no endorser": {
			raw: "committer: {address: a}\norderer: {address: b}\n",
			err: "no endorser is configured",
		},
		"no committer": {
			raw: "endorsers: [{address: a}]\norderer: {address: b}\n",
			err: "committer address is not configured",
		},
		"no orderer": {
			raw: "endorsers: [{address: a}]\ncommitter: {address: a}\n",
			err: "orderer address is not configured",
		},
		"bad policy": {
			raw: testConfig + "endorsementPolicy: most\n",
			err: "most",
		},
		"negative timeout": {
			raw: testConfig + "commitTimeout: -1s\n",
			err: "negative",
		},
		"missing tls file": {
			raw: "endorsers: [{address: a, tlsCACert: /does/not/exist}]\ncommitter: {address: a}\norderer: {address: b}\n",
			err: "fail to load TLS CA Cert",
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig([]byte(tc.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestLoadConfigFromMissingFile(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
