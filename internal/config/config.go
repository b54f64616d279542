package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"caseline/internal/domain"
)

// Config models caseline.yml: the transition catalog, role gate, SLA obligations
// and notification targets. Loaded once at process start, read-only afterwards.
type Config struct {
	Workflow struct {
		InitialState string           `yaml:"initial_state"`
		Transitions  []TransitionSpec `yaml:"transitions"`
		Tracks       map[string]Track `yaml:"tracks"`
	} `yaml:"workflow"`
	SLA struct {
		Obligations map[string]Obligation `yaml:"obligations"`
		Sweep       string                `yaml:"sweep"`
	} `yaml:"sla"`
	Notifications struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
		Slack    SlackConfig     `yaml:"slack"`
	} `yaml:"notifications"`
	PersistTimeoutSeconds int `yaml:"persist_timeout_seconds"`
}

// TransitionSpec is one edge of the case state machine.
type TransitionSpec struct {
	Name           string   `yaml:"name" json:"name"`
	From           string   `yaml:"from" json:"from"`
	To             string   `yaml:"to" json:"to"`
	Roles          []string `yaml:"roles" json:"roles"`
	Require        []string `yaml:"require,omitempty" json:"require,omitempty"`
	Classification string   `yaml:"classification,omitempty" json:"classification,omitempty"`
	Fanout         []string `yaml:"fanout,omitempty" json:"fanout,omitempty"`
	SLA            string   `yaml:"sla,omitempty" json:"sla,omitempty"`
	Notify         bool     `yaml:"notify,omitempty" json:"notify,omitempty"`
	Backward       bool     `yaml:"backward,omitempty" json:"backward,omitempty"`
}

// Track declares a fan-out sub-track and the sub-state it starts in.
type Track struct {
	Entry string `yaml:"entry"`
}

type Obligation struct {
	Description string `yaml:"description"`
	OffsetDays  int    `yaml:"offset_days"`
}

// Offset is the duration added to the triggering transition timestamp.
func (o Obligation) Offset() time.Duration {
	return time.Duration(o.OffsetDays) * 24 * time.Hour
}

type WebhookConfig struct {
	URL         string   `yaml:"url"`
	Transitions []string `yaml:"transitions,omitempty"`
	Enabled     *bool    `yaml:"enabled,omitempty"`
}

type SlackConfig struct {
	Token       string   `yaml:"token"`
	ChannelID   string   `yaml:"channel_id"`
	Transitions []string `yaml:"transitions,omitempty"`
}

var knownStates = map[string]bool{
	domain.StateDraft:               true,
	domain.StateSubmitted:           true,
	domain.StateAllocated:           true,
	domain.StateUnderInvestigation:  true,
	domain.StatePrimaryReview:       true,
	domain.StateApproved:            true,
	domain.StateRejected:            true,
	domain.StateApprover1Review:     true,
	domain.StateApprover2Review:     true,
	domain.StateFinalAdjudication:   true,
	domain.StateLegalReview:         true,
	domain.StateRegulatoryReporting: true,
	domain.StateActioner:            true,
	domain.StateClosureLegal:        true,
	domain.StateClosed:              true,
}

var knownRoles = map[string]bool{
	domain.RoleInitiator:     true,
	domain.RoleInvestigator:  true,
	domain.RoleReviewer:      true,
	domain.RoleApprover:      true,
	domain.RoleLegalReviewer: true,
	domain.RoleActioner:      true,
	domain.RoleAdministrator: true,
}

var knownClassifications = map[string]bool{
	domain.ClassificationFraud:         true,
	domain.ClassificationNonFraud:      true,
	domain.ClassificationOtherIncident: true,
}

// Validate ensures the catalog is internally consistent.
func (c *Config) Validate() error {
	if c.Workflow.InitialState == "" {
		c.Workflow.InitialState = domain.StateDraft
	}
	if !knownStates[c.Workflow.InitialState] {
		return fmt.Errorf("workflow.initial_state %s unknown", c.Workflow.InitialState)
	}
	if len(c.Workflow.Transitions) == 0 {
		return fmt.Errorf("workflow.transitions is required")
	}
	seen := map[string]bool{}
	for _, t := range c.Workflow.Transitions {
		if t.Name == "" {
			return fmt.Errorf("transition with empty name (from %s)", t.From)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate transition name %s", t.Name)
		}
		seen[t.Name] = true
		if !knownStates[t.From] {
			return fmt.Errorf("transition %s: unknown from-state %s", t.Name, t.From)
		}
		if !knownStates[t.To] {
			return fmt.Errorf("transition %s: unknown to-state %s", t.Name, t.To)
		}
		if domain.IsTerminalState(t.From) {
			return fmt.Errorf("transition %s leaves terminal state %s", t.Name, t.From)
		}
		if len(t.Roles) == 0 {
			return fmt.Errorf("transition %s: roles is required", t.Name)
		}
		for _, r := range t.Roles {
			if !knownRoles[r] {
				return fmt.Errorf("transition %s: unknown role %s", t.Name, r)
			}
		}
		if t.Classification != "" && !knownClassifications[t.Classification] {
			return fmt.Errorf("transition %s: unknown classification %s", t.Name, t.Classification)
		}
		for _, track := range t.Fanout {
			if _, ok := c.Workflow.Tracks[track]; !ok {
				return fmt.Errorf("transition %s: fanout references unknown track %s", t.Name, track)
			}
		}
		if t.SLA != "" {
			if _, ok := c.SLA.Obligations[t.SLA]; !ok {
				return fmt.Errorf("transition %s: unknown sla obligation %s", t.Name, t.SLA)
			}
		}
	}
	for name, track := range c.Workflow.Tracks {
		if !knownStates[track.Entry] {
			return fmt.Errorf("track %s: unknown entry state %s", name, track.Entry)
		}
	}
	for name, ob := range c.SLA.Obligations {
		if ob.OffsetDays <= 0 {
			return fmt.Errorf("sla obligation %s: offset_days must be positive", name)
		}
	}
	return nil
}

// FindTransition returns the catalog entry by name.
func (c *Config) FindTransition(name string) (TransitionSpec, bool) {
	for _, t := range c.Workflow.Transitions {
		if t.Name == name {
			return t, true
		}
	}
	return TransitionSpec{}, false
}

// TransitionsFrom lists the edges leaving a state.
func (c *Config) TransitionsFrom(state string) []TransitionSpec {
	var out []TransitionSpec
	for _, t := range c.Workflow.Transitions {
		if t.From == state {
			out = append(out, t)
		}
	}
	return out
}

// Catalog returns the full transition catalog for UI consumption.
func (c *Config) Catalog() []TransitionSpec {
	out := make([]TransitionSpec, len(c.Workflow.Transitions))
	copy(out, c.Workflow.Transitions)
	return out
}

// PersistTimeout is the deadline for a single persistence call; zero means none.
func (c *Config) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "caseline.yml")
}

// Load reads config from workspace, falling back to the embedded default.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in workflow configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns the default config YAML for `cl config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `workflow:
  initial_state: draft

  transitions:
    - name: submit
      from: draft
      to: submitted
      roles: [initiator]
      require: [case_description]

    - name: allocate
      from: submitted
      to: allocated
      roles: [reviewer]
      require: [allocated_to]
      notify: true

    - name: beginInvestigation
      from: allocated
      to: under_investigation
      roles: [investigator]

    - name: submitFindings
      from: under_investigation
      to: primary_review
      roles: [investigator]
      require: [investigation_summary]

    - name: approve
      from: primary_review
      to: approved
      roles: [reviewer]
      require: [reviewer_comments]

    - name: reject
      from: primary_review
      to: rejected
      roles: [reviewer]
      require: [reviewer_comments]

    - name: resubmit
      from: rejected
      to: under_investigation
      roles: [investigator]
      backward: true

    - name: sendToApprover1
      from: approved
      to: approver1_review
      roles: [reviewer]

    - name: approver1Approve
      from: approver1_review
      to: approver2_review
      roles: [approver]
      require: [decision]

    - name: approver1Reject
      from: approver1_review
      to: rejected
      roles: [approver]
      require: [decision]
      backward: true

    - name: approver2Approve
      from: approver2_review
      to: final_adjudication
      roles: [approver]
      require: [decision]

    - name: approver2Reject
      from: approver2_review
      to: rejected
      roles: [approver]
      require: [decision]
      backward: true

    - name: routeToLegal
      from: final_adjudication
      to: legal_review
      roles: [legal_reviewer]
      require: [classification]
      classification: fraud
      fanout: [legal, actioner]
      sla: FMR1
      notify: true

    - name: routeToClosure
      from: final_adjudication
      to: actioner
      roles: [actioner]
      require: [classification]
      classification: non_fraud

    - name: routeToActioner
      from: final_adjudication
      to: actioner
      roles: [actioner]
      require: [classification, stakeholder_actions]
      classification: other_incident

    - name: routeToRegulatory
      from: legal_review
      to: regulatory_reporting
      roles: [legal_reviewer]
      require: [regulatory_grounds]
      sla: FMR3

    - name: concludeLegal
      from: legal_review
      to: closure_legal
      roles: [legal_reviewer]
      require: [legal_opinion]

    - name: submitRegulatoryReport
      from: regulatory_reporting
      to: closure_legal
      roles: [legal_reviewer]
      require: [report_reference]

    - name: completeActions
      from: actioner
      to: closed
      roles: [actioner]
      require: [closure_remarks]

  tracks:
    legal:
      entry: legal_review
    actioner:
      entry: actioner

sla:
  sweep: "0 * * * *"
  obligations:
    FMR1:
      description: "Initial fraud monitoring report"
      offset_days: 21
    FMR3:
      description: "Closure fraud monitoring report"
      offset_days: 90

persist_timeout_seconds: 10
`
