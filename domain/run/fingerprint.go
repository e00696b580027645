package run

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint identifies the inputs of a run so identical runs can be
// recognised and replayed
type Fingerprint struct {
	DataPath    string `json:"data_path"`
	Seed        int64  `json:"seed"`
	CodeVersion string `json:"code_version"`
	Value       string `json:"value"` // Hash of all run parameters
}

// NewFingerprint creates a fingerprint from the run parameters
func NewFingerprint(p Parameters, codeVersion string) Fingerprint {
	return Fingerprint{
		DataPath:    p.DataPath,
		Seed:        p.Seed,
		CodeVersion: codeVersion,
		Value:       computeFingerprint(p, codeVersion),
	}
}

func computeFingerprint(p Parameters, codeVersion string) string {
	ignore := append([]int(nil), p.IgnoreIndices...)
	sort.Ints(ignore)

	features := make([]string, 0, len(p.TransitionRules))
	for f := range p.TransitionRules {
		features = append(features, f)
	}
	sort.Strings(features)
	rules := make([]string, len(features))
	for i, f := range features {
		rules[i] = f + "=" + p.TransitionRules[f]
	}

	data := fmt.Sprintf("data:%s|target:%d|thresh:%g|ignore:%v|rules:%s|timeout:%d|seed:%d|undesired:%d|depth:%d|code:%s",
		p.DataPath, p.TargetIdx, p.ThreshProb, ignore, strings.Join(rules, ";"),
		p.TimeoutSeconds, p.Seed, p.UndesiredLabel, p.MaxDepth, codeVersion)

	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
