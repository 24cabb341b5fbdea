package projects

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/marcelsud/webhook-relay/webhook"
)

/* Project holds optional delivery defaults for one project id
 * Captures for unknown projects are still accepted; they just have no defaults
 */
type Project struct {
	ProjectID   string
	TargetURL   string // Forwarded to right after capture when set
	MaxAttempts int    // Overrides the global attempt budget when positive
}

// Validate checks if the project configuration is valid
func (p *Project) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.ProjectID, validation.Required),
		validation.Field(&p.TargetURL, validation.By(func(value interface{}) error {
			if s, _ := value.(string); s != "" {
				return webhook.ValidateTargetURL(s)
			}
			return nil
		})),
		validation.Field(&p.MaxAttempts, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("project %q: %w", p.ProjectID, err)
	}
	return nil
}

// Settings returns the delivery defaults handed to the relay service
func (p *Project) Settings() webhook.ProjectSettings {
	return webhook.ProjectSettings{
		TargetURL:   p.TargetURL,
		MaxAttempts: p.MaxAttempts,
	}
}
