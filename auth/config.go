package auth

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// otpPolicy is the only OTP policy this core recognizes. It decodes from a
// YAML mapping node (e.g. `otp: { static: 12345678 }`), mirroring the
// teacher's tagged-node UnmarshalYAML pattern.
type otpPolicy struct {
	Static *uint32
}

func (p *otpPolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Static *uint32 `yaml:"static"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("otp policy: %w", err)
	}
	if raw.Static == nil {
		return fmt.Errorf("otp policy: only \"static\" is recognized")
	}
	if *raw.Static > 99999999 {
		return fmt.Errorf("otp policy: static pin %d out of range [0, 99999999]", *raw.Static)
	}
	p.Static = raw.Static
	return nil
}

type userEntry struct {
	OTP otpPolicy `yaml:"otp"`
}

// ParseUsersFile parses the users configuration file described in spec §6:
// a mapping from username to OTP policy. A parse error, or a pin outside
// [0, 99999999], is returned for the caller to treat as fatal at startup.
func ParseUsersFile(data []byte) (*Registry, error) {
	var raw map[string]userEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing users file: %w", err)
	}

	reg := NewRegistry()
	for name, entry := range raw {
		reg.Add(UserID(name), NewStaticOTP(*entry.OTP.Static, DefaultValidityWindow))
	}
	return reg, nil
}
