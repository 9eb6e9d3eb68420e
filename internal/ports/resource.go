package ports

import (
	"context"
	"errors"
)

// ResourceStatus is the provider-reported lifecycle state of a sandboxed
// resource.
type ResourceStatus string

const (
	ResourcePending      ResourceStatus = "PENDING"
	ResourceProvisioning ResourceStatus = "PROVISIONING"
	ResourceRunning      ResourceStatus = "RUNNING"
	ResourceError        ResourceStatus = "ERROR"
	ResourceTerminated   ResourceStatus = "TERMINATED"
)

// ErrResourceNotFound indicates the provider does not (yet) know the
// requested resource id. Readiness polling treats it as transient because a
// freshly created resource may not be visible immediately.
var ErrResourceNotFound = errors.New("resource not found")

// ResourceConfig describes the sandbox to provision for one rollout.
type ResourceConfig struct {
	Name           string            `yaml:"name" json:"name"`
	Image          string            `yaml:"image" json:"docker_image"`
	StartCommand   string            `yaml:"start_command" json:"start_command"`
	CPUCores       int               `yaml:"cpu_cores" json:"cpu_cores"`
	MemoryGB       int               `yaml:"memory_gb" json:"memory_gb"`
	DiskGB         int               `yaml:"disk_gb" json:"disk_size_gb"`
	TimeoutMinutes int               `yaml:"timeout_minutes" json:"timeout_minutes"`
	EnvVars        map[string]string `yaml:"env_vars" json:"environment_vars,omitempty"`
}

// ExecResult is the captured output of one command run inside a resource.
type ExecResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// ResourceClient provisions and drives externally sandboxed resources.
// Implementations are injected explicitly; there is no ambient default
// instance. Clients must be safe for concurrent use, since many rollouts
// acquire and release resources in parallel.
type ResourceClient interface {
	// Create fires a provisioning request and returns the new resource id.
	// It does not guarantee readiness; callers poll Status until RUNNING.
	Create(ctx context.Context, cfg ResourceConfig) (string, error)

	// Status reports the resource's current lifecycle state. A resource
	// the provider cannot see yet yields ErrResourceNotFound.
	Status(ctx context.Context, id string) (ResourceStatus, error)

	// Execute runs a command inside a RUNNING resource.
	Execute(ctx context.Context, id, command string) (ExecResult, error)

	// Destroy tears the resource down. Destroying an already-gone resource
	// must succeed.
	Destroy(ctx context.Context, id string) error
}
