package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"gopkg.in/yaml.v3"
)

// FuncRef names a registered function and its arguments
type FuncRef struct {
	Func string `yaml:"func"`
	Args Args   `yaml:"args,omitempty"`
}

// PlanNode is a test or suite as written in a plan file
type PlanNode struct {
	Name           string      `yaml:"name"`
	ID             string      `yaml:"id,omitempty"`
	Kind           string      `yaml:"kind,omitempty"`
	Func           string      `yaml:"func,omitempty"`
	Args           Args        `yaml:"args,omitempty"`
	SetUp          *FuncRef    `yaml:"setup,omitempty"`
	TearDown       *FuncRef    `yaml:"teardown,omitempty"`
	Parallel       string      `yaml:"parallel,omitempty"`
	Affinity       string      `yaml:"affinity,omitempty"`
	RequiresThread bool        `yaml:"requires_thread,omitempty"`
	Timeout        string      `yaml:"timeout,omitempty"`
	Order          int         `yaml:"order,omitempty"`
	RunState       string      `yaml:"run_state,omitempty"`
	Reason         string      `yaml:"reason,omitempty"`
	Children       []*PlanNode `yaml:"children,omitempty"`
}

func (n *PlanNode) isSuite() bool {
	switch n.Kind {
	case "suite":
		return true
	case "test":
		return false
	}
	return len(n.Children) > 0 || n.SetUp != nil || n.TearDown != nil
}

// LoadPlan reads a plan file and builds its test tree
func (r *Registry) LoadPlan(path string) (*types.Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	root, err := r.ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	r.config.Log.Debug("Plan loaded", "path", path, "tests", root.CountTestCases(nil))
	return root, nil
}

// ParsePlan validates a YAML plan against the plan schema and builds its test tree
func (r *Registry) ParsePlan(data []byte) (*types.Test, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("plan is empty")
	}
	js, err := yamlToJSON(doc)
	if err != nil {
		return nil, err
	}
	if err := ValidatePlanJSON(js); err != nil {
		return nil, err
	}

	var node PlanNode
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return r.build(&node, "")
}

func (r *Registry) build(n *PlanNode, parentName string) (*types.Test, error) {
	fullName := types.JoinName(parentName, n.Name)
	t := &types.Test{
		ID:             n.ID,
		Name:           n.Name,
		Affinity:       types.Affinity(n.Affinity),
		RequiresThread: n.RequiresThread,
		Order:          n.Order,
		SkipReason:     n.Reason,
	}

	var err error
	if t.ParallelScope, err = types.ParseParallelScope(n.Parallel); err != nil {
		return nil, fmt.Errorf("%s: %w", fullName, err)
	}
	if t.RunState, err = parseRunState(n.RunState); err != nil {
		return nil, fmt.Errorf("%s: %w", fullName, err)
	}
	if n.Timeout != "" {
		if t.Timeout, err = time.ParseDuration(n.Timeout); err != nil {
			return nil, fmt.Errorf("%s: invalid timeout: %w", fullName, err)
		}
	}

	if !n.isSuite() {
		t.Kind = types.KindLeaf
		// a leaf without a body is reported as not runnable
		if n.Func == "" {
			return t, nil
		}
		if t.Body, err = r.Lookup(n.Func, n.Args); err != nil {
			return nil, fmt.Errorf("%s: %w", fullName, err)
		}
		return t, nil
	}

	if n.Func != "" {
		return nil, fmt.Errorf("%s: suites cannot have a body", fullName)
	}
	t.Kind = types.KindSuite
	if n.SetUp != nil {
		if t.SetUp, err = r.Lookup(n.SetUp.Func, n.SetUp.Args); err != nil {
			return nil, fmt.Errorf("%s setup: %w", fullName, err)
		}
	}
	if n.TearDown != nil {
		if t.TearDown, err = r.Lookup(n.TearDown.Func, n.TearDown.Args); err != nil {
			return nil, fmt.Errorf("%s teardown: %w", fullName, err)
		}
	}
	seen := make(map[string]bool, len(n.Children))
	for _, c := range n.Children {
		if seen[c.Name] {
			return nil, fmt.Errorf("%s: duplicate child %q", fullName, c.Name)
		}
		seen[c.Name] = true
		child, err := r.build(c, fullName)
		if err != nil {
			return nil, err
		}
		t.Children = append(t.Children, child)
	}
	return t, nil
}

func parseRunState(s string) (types.RunState, error) {
	switch s {
	case "", "runnable":
		return types.RunStateRunnable, nil
	case "not-runnable":
		return types.RunStateNotRunnable, nil
	case "skipped":
		return types.RunStateSkipped, nil
	case "ignored":
		return types.RunStateIgnored, nil
	case "explicit":
		return types.RunStateExplicit, nil
	}
	return 0, fmt.Errorf("unknown run state %q", s)
}
