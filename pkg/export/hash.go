package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/plan"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
)

// HashAlgorithm identifies the hashing algorithm used for session hashes.
const HashAlgorithm = "SHA-256"

// RecordConfig holds what determines a session's reproducibility. Two
// sessions with the same record ran the same trials in the same order.
type RecordConfig struct {
	ToolVersion string `json:"tool_version"`
	Participant string `json:"participant"`
	Variant     string `json:"variant"`
	Seed        int64  `json:"seed"`

	TrialCount int `json:"trial_count"`
	Completed  int `json:"completed"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// ConfigDigest is the SHA-256 of the configuration as YAML.
	ConfigDigest string `json:"config_digest"`

	// PlanDigest is the SHA-256 of the plan as JSON.
	PlanDigest string `json:"plan_digest"`

	// Parameters are extra key-value pairs, sorted by key when hashed.
	Parameters map[string]string `json:"parameters,omitempty"`
}

// SessionHash is the computed hash and its inputs.
type SessionHash struct {
	Hash       string        `json:"hash"`
	Algorithm  string        `json:"algorithm"`
	ComputedAt time.Time     `json:"computed_at"`
	Config     *RecordConfig `json:"config"`
}

// HashBuilder collects the inputs of a session hash.
type HashBuilder struct {
	config *RecordConfig
	err    error
}

// NewHashBuilder creates an empty HashBuilder.
func NewHashBuilder() *HashBuilder {
	return &HashBuilder{config: &RecordConfig{Parameters: make(map[string]string)}}
}

// WithToolVersion sets the tool version.
func (hb *HashBuilder) WithToolVersion(version string) *HashBuilder {
	hb.config.ToolVersion = version
	return hb
}

// WithSession takes identity, counts and times from s.
func (hb *HashBuilder) WithSession(s *session.Session) *HashBuilder {
	hb.config.Participant = s.Participant
	hb.config.Variant = s.Variant
	hb.config.StartTime = s.StartedAt
	hb.config.EndTime = s.EndedAt
	hb.config.Completed = s.CompletedTrials()
	if s.Plan != nil {
		hb.WithPlan(s.Plan)
	}
	return hb
}

// WithPlan digests the plan and records its seed and length.
func (hb *HashBuilder) WithPlan(p *plan.Plan) *HashBuilder {
	data, err := json.Marshal(p)
	if err != nil {
		hb.fail(fmt.Errorf("failed to encode plan: %w", err))
		return hb
	}
	hb.config.Seed = p.Seed
	hb.config.TrialCount = p.Len()
	hb.config.PlanDigest = digest(data)
	return hb
}

// WithConfig digests the configuration.
func (hb *HashBuilder) WithConfig(cfg *config.Config) *HashBuilder {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		hb.fail(fmt.Errorf("failed to encode config: %w", err))
		return hb
	}
	hb.config.ConfigDigest = digest(data)
	return hb
}

// WithParameter adds a parameter.
func (hb *HashBuilder) WithParameter(key, value string) *HashBuilder {
	if hb.config.Parameters == nil {
		hb.config.Parameters = make(map[string]string)
	}
	hb.config.Parameters[key] = value
	return hb
}

func (hb *HashBuilder) fail(err error) {
	if hb.err == nil {
		hb.err = err
	}
}

// Build computes the hash. The hash is deterministic: identical inputs
// produce identical hashes.
func (hb *HashBuilder) Build() (*SessionHash, error) {
	if hb.err != nil {
		return nil, hb.err
	}
	return &SessionHash{
		Hash:       computeHash(hb.config),
		Algorithm:  HashAlgorithm,
		ComputedAt: time.Now(),
		Config:     hb.config,
	}, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// computeHash hashes a canonical string of the record. Order is fixed.
func computeHash(config *RecordConfig) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "version:%s|", config.ToolVersion)
	fmt.Fprintf(&sb, "participant:%s|", config.Participant)
	fmt.Fprintf(&sb, "variant:%s|", config.Variant)
	fmt.Fprintf(&sb, "seed:%d|", config.Seed)
	fmt.Fprintf(&sb, "trials:%d|", config.TrialCount)
	fmt.Fprintf(&sb, "completed:%d|", config.Completed)
	fmt.Fprintf(&sb, "start:%s|", config.StartTime.UTC().Format(time.RFC3339))
	if config.EndTime != nil {
		fmt.Fprintf(&sb, "end:%s|", config.EndTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "config:%s|", config.ConfigDigest)
	fmt.Fprintf(&sb, "plan:%s|", config.PlanDigest)

	if len(config.Parameters) > 0 {
		sb.WriteString("params:")
		keys := make([]string, 0, len(config.Parameters))
		for k := range config.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(k + "=" + config.Parameters[k])
		}
		sb.WriteString("|")
	}

	return digest([]byte(sb.String()))
}

// ShortHash returns the first 8 characters of the full hash.
func (sh *SessionHash) ShortHash() string {
	if len(sh.Hash) >= 8 {
		return sh.Hash[:8]
	}
	return sh.Hash
}

// Verify recomputes the hash and checks it against the stored one.
func (sh *SessionHash) Verify() bool {
	if sh.Config == nil {
		return false
	}
	return computeHash(sh.Config) == sh.Hash
}

// ToJSON returns the record as indented JSON.
func (sh *SessionHash) ToJSON() (string, error) {
	data, err := json.MarshalIndent(sh, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal session hash: %w", err)
	}
	return string(data), nil
}

// WriteRecordFile writes <dir>/<name>_record.json and returns its path.
func WriteRecordFile(dir, name string, sh *SessionHash) (string, error) {
	data, err := sh.ToJSON()
	if err != nil {
		return "", taskerrors.IOWrap(err, taskerrors.ErrExportFailed, "cannot encode session record")
	}
	path := filepath.Join(dir, name+"_record.json")
	if err := os.WriteFile(path, []byte(data+"\n"), 0o644); err != nil {
		return "", taskerrors.IOWrap(err, taskerrors.ErrExportFailed, "cannot write session record").
			WithContext(taskerrors.ContextPath, path)
	}
	return path, nil
}
