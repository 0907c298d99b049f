package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"gopkg.in/yaml.v3"
)

// Services The deployable units this process releases and scales
type Services struct {
	Services []ServiceDefinition `yaml:"services"`
}

// ServiceDefinition One service: one Deployment, its source, its image repository and its scaling policy
type ServiceDefinition struct {
	Name       string            `yaml:"name"`
	Namespace  string            `yaml:"namespace"`
	Deployment string            `yaml:"deployment"`
	Branch     string            `yaml:"branch"`
	Source     SourceDefinition  `yaml:"source"`
	Registry   string            `yaml:"registry"`
	BaseImage  string            `yaml:"baseImage"`
	Containers []string          `yaml:"containers"`
	Scaling    ScalingDefinition `yaml:"scaling"`
}

type SourceDefinition struct {
	Repository string `yaml:"repository"`
	// ArchiveUrl template of a tar(.gz) snapshot of the source, {revision} is substituted
	ArchiveUrl string `yaml:"archiveUrl"`
}

type ScalingDefinition struct {
	Metric           string        `yaml:"metric"`
	TargetValue      float64       `yaml:"targetValue"`
	MinReplicas      int32         `yaml:"minReplicas"`
	MaxReplicas      int32         `yaml:"maxReplicas"`
	ScaleInCooldown  time.Duration `yaml:"scaleInCooldown"`
	ScaleOutCooldown time.Duration `yaml:"scaleOutCooldown"`
	Interval         time.Duration `yaml:"interval"`
	Tolerance        float64       `yaml:"tolerance"`
}

const (
	defaultScalingMetric   = "cpu"
	defaultScalingInterval = 30 * time.Second
)

// LoadServices Reads and validates the service definitions file
func LoadServices(path string) (*Services, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}
	return ParseServices(data)
}

// ParseServices Parses and validates service definitions, filling defaults
func ParseServices(data []byte) (*Services, error) {
	var services Services
	if err := yaml.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("unmarshal services: %w", err)
	}

	for i := range services.Services {
		services.Services[i].applyDefaults()
	}
	if err := services.Validate(); err != nil {
		return nil, err
	}
	return &services, nil
}

// Get Finds a service definition by name
func (s *Services) Get(serviceName string) (ServiceDefinition, bool) {
	for _, svc := range s.Services {
		if svc.Name == serviceName {
			return svc, true
		}
	}
	return ServiceDefinition{}, false
}

func (s *ServiceDefinition) applyDefaults() {
	if s.Deployment == "" {
		s.Deployment = s.Name
	}
	if s.Namespace == "" {
		s.Namespace = "default"
	}
	if s.Scaling.Metric == "" {
		s.Scaling.Metric = defaultScalingMetric
	}
	if s.Scaling.Interval == 0 {
		s.Scaling.Interval = defaultScalingInterval
	}
}

// Validate Checks every service definition, reporting all problems at once
func (s *Services) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, svc := range s.Services {
		if svc.Name == "" {
			errs = append(errs, fmt.Errorf("services[%d]: name is required", i))
			continue
		}
		if seen[svc.Name] {
			errs = append(errs, fmt.Errorf("service %s: defined more than once", svc.Name))
		}
		seen[svc.Name] = true
		if err := svc.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s ServiceDefinition) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("service %s: %s", s.Name, fmt.Sprintf(format, args...)))
	}

	if strings.TrimSpace(s.Branch) == "" {
		fail("branch is required")
	}
	if len(s.Containers) == 0 {
		fail("at least one container is required")
	}
	for _, c := range s.Containers {
		if strings.TrimSpace(c) == "" {
			fail("container names cannot be empty")
		}
	}
	if _, err := name.NewRepository(s.Registry); err != nil {
		fail("invalid registry repository %q: %v", s.Registry, err)
	}
	if s.Source.ArchiveUrl != "" && !strings.Contains(s.Source.ArchiveUrl, "{revision}") {
		fail("source archiveUrl must contain {revision}")
	}

	sc := s.Scaling
	if sc.MinReplicas <= 0 {
		fail("scaling minReplicas must be positive")
	}
	if sc.MaxReplicas < sc.MinReplicas {
		fail("scaling maxReplicas must be >= minReplicas")
	}
	if sc.TargetValue <= 0 {
		fail("scaling targetValue must be positive")
	}
	if sc.ScaleInCooldown < 0 || sc.ScaleOutCooldown < 0 {
		fail("scaling cooldowns cannot be negative")
	}
	if sc.Interval <= 0 {
		fail("scaling interval must be positive")
	}
	if sc.Tolerance < 0 || sc.Tolerance >= 1 {
		fail("scaling tolerance must be in [0,1)")
	}
	if sc.Metric != "cpu" && sc.Metric != "memory" {
		fail("unsupported scaling metric %q", sc.Metric)
	}
	return errors.Join(errs...)
}
