package projects

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/marcelsud/webhook-relay/webhook"
	"gopkg.in/yaml.v3"
)

/* Loader manages project configuration from projects.yaml
 * Provides in-memory lookup for fast access
 */

// Config represents the structure of projects.yaml
type Config struct {
	Projects []ProjectConfig `yaml:"projects"`
}

// ProjectConfig represents a single project in the YAML file
type ProjectConfig struct {
	ProjectID   string `yaml:"project_id"`
	TargetURL   string `yaml:"target_url"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// Loader holds the loaded projects
type Loader struct {
	projects map[string]*Project
}

// NewLoader creates a new project loader
func NewLoader() *Loader {
	return &Loader{
		projects: make(map[string]*Project),
	}
}

// Load reads and parses the projects file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading projects file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing projects YAML: %w", err)
	}

	loaded := make(map[string]*Project, len(config.Projects))
	for _, pc := range config.Projects {
		project := &Project{
			ProjectID:   pc.ProjectID,
			TargetURL:   pc.TargetURL,
			MaxAttempts: pc.MaxAttempts,
		}

		if err := project.Validate(); err != nil {
			return fmt.Errorf("validating project: %w", err)
		}
		if _, dup := loaded[project.ProjectID]; dup {
			return fmt.Errorf("validating project: duplicate project_id %q", project.ProjectID)
		}

		loaded[project.ProjectID] = project
	}

	l.projects = loaded
	return nil
}

// LoadOptional is Load, except a missing file leaves the loader empty
func (l *Loader) LoadOptional(filePath string) error {
	if filePath == "" {
		return nil
	}
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return l.Load(filePath)
}

// Get retrieves a project by its ID
func (l *Loader) Get(projectID string) (*Project, error) {
	project, exists := l.projects[projectID]
	if !exists {
		return nil, fmt.Errorf("project not found: %s", projectID)
	}
	return project, nil
}

// List returns all loaded projects sorted by id
func (l *Loader) List() []*Project {
	projects := make([]*Project, 0, len(l.projects))
	for _, project := range l.projects {
		projects = append(projects, project)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ProjectID < projects[j].ProjectID
	})
	return projects
}

// Settings implements webhook.ProjectResolver
func (l *Loader) Settings(projectID string) (webhook.ProjectSettings, bool) {
	project, exists := l.projects[projectID]
	if !exists {
		return webhook.ProjectSettings{}, false
	}
	return project.Settings(), true
}
