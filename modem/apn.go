package modem

import (
	"maps"
	"strings"
)

// NetworkConfig selects the packet data network.
type NetworkConfig struct {
	APN      string `yaml:"apn"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Valid reports whether an APN is set.
func (n NetworkConfig) Valid() bool {
	return n.APN != ""
}

// hasCredentials reports whether CHAP authentication applies.
func (n NetworkConfig) hasCredentials() bool {
	return n.User != "" && n.Password != ""
}

// APNTable maps IMSI prefixes (MCC followed by MNC) to network settings.
type APNTable map[string]NetworkConfig

// DefaultAPNTable returns the built-in IMSI prefix table.
func DefaultAPNTable() APNTable {
	return APNTable{
		"21407":  {APN: "spark.telefonica.com"},
		"310410": {APN: "10569.mcs"},
		"23420":  {APN: "three.co.uk"},
		"310260": {APN: "wireless.twilio.com"},
		"20404":  {APN: "super"},
	}
}

// Merge returns a copy of t with the entries of overrides added or
// replaced.
func (t APNTable) Merge(overrides APNTable) APNTable {
	out := maps.Clone(t)
	if out == nil {
		out = APNTable{}
	}
	maps.Copy(out, overrides)
	return out
}

// Lookup returns the settings of the longest prefix matching imsi.
func (t APNTable) Lookup(imsi string) (NetworkConfig, bool) {
	imsi = strings.TrimSpace(imsi)
	var (
		best    NetworkConfig
		bestLen int
	)
	for prefix, conf := range t {
		if len(prefix) > bestLen && strings.HasPrefix(imsi, prefix) {
			best, bestLen = conf, len(prefix)
		}
	}
	return best, bestLen > 0
}
