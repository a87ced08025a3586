package infra

import (
	"bytes"
	"encoding/json"
	"io/ioutil"

	"github.com/osdi23p228/txcommit/pkg/submit"
	"github.com/pkg/errors"
)

// LoadRequestFromFile reads a JSON invocation request. Arguments that are not
// strings keep their literal JSON text so the chaincode receives them
// unchanged.
func LoadRequestFromFile(filename string) (submit.Request, error) {
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return submit.Request{}, errors.Wrapf(err, "fail to load %s", filename)
	}
	return ParseRequest(raw)
}

type requestFile struct {
	submit.Request
	Args []json.RawMessage `json:"args"`
}

func ParseRequest(raw []byte) (submit.Request, error) {
	var f requestFile
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		return submit.Request{}, errors.Wrap(err, "fail to unmarshal request")
	}

	req := f.Request
	req.Args = make([]interface{}, len(f.Args))
	for i, arg := range f.Args {
		trimmed := bytes.TrimSpace(arg)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var s string
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return submit.Request{}, errors.Wrapf(err, "fail to unmarshal argument %d", i)
			}
			req.Args[i] = s
			continue
		}
		req.Args[i] = json.RawMessage(trimmed)
	}
	return req, nil
}

// withDefaults fills the chaincode name and version from the config.
func withDefaults(req submit.Request, c *Config) submit.Request {
	if req.Chaincode == "" {
		req.Chaincode = c.Chaincode
	}
	if req.Version == "" {
		req.Version = c.Version
	}
	return req
}
